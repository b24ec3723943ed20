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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAsynqLogger_RoutesLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := &asynqLoggerAdapter{l: zap.New(core).Sugar().With("component", "asynq")}

	adapter.Debug("lease renewed")
	adapter.Info("server started")
	adapter.Warn("retrying", " node-execution-timeout")
	adapter.Error("handler failed")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "retrying node-execution-timeout", entries[2].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	for _, e := range entries {
		assert.Equal(t, "asynq", e.ContextMap()["component"])
	}
}

func TestNewAsynqLogger(t *testing.T) {
	adapter := newAsynqLogger()
	require.NotNil(t, adapter.l)
	assert.NotPanics(t, func() { adapter.Info("queue", "ready") })
}
