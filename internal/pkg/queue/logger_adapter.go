// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"github.com/go-arcade/orchestrator/pkg/log"
	"go.uber.org/zap"
)

// asynqLoggerAdapter routes asynq logs through pkg/log, tagged with the component.
type asynqLoggerAdapter struct {
	l *zap.SugaredLogger
}

func newAsynqLogger() *asynqLoggerAdapter {
	return &asynqLoggerAdapter{l: log.With("component", "asynq")}
}

func (a *asynqLoggerAdapter) Debug(args ...any) { a.l.Debug(args...) }
func (a *asynqLoggerAdapter) Info(args ...any)  { a.l.Info(args...) }
func (a *asynqLoggerAdapter) Warn(args ...any)  { a.l.Warn(args...) }
func (a *asynqLoggerAdapter) Error(args ...any) { a.l.Error(args...) }
func (a *asynqLoggerAdapter) Fatal(args ...any) { a.l.Fatal(args...) }
