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

package log

import "go.uber.org/zap"

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// With returns a child logger carrying the given key/value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return current().With(keysAndValues...)
}

func Info(args ...any) {
	current().Info(args...)
}

func Infof(format string, args ...any) {
	current().Infof(format, args...)
}

func Infow(msg string, keysAndValues ...any) {
	current().Infow(msg, keysAndValues...)
}

func Debug(args ...any) {
	current().Debug(args...)
}

func Debugf(format string, args ...any) {
	current().Debugf(format, args...)
}

func Debugw(msg string, keysAndValues ...any) {
	current().Debugw(msg, keysAndValues...)
}

func Warn(args ...any) {
	current().Warn(args...)
}

func Warnf(format string, args ...any) {
	current().Warnf(format, args...)
}

func Warnw(msg string, keysAndValues ...any) {
	current().Warnw(msg, keysAndValues...)
}

func Error(args ...any) {
	current().Error(args...)
}

func Errorf(format string, args ...any) {
	current().Errorf(format, args...)
}

func Errorw(msg string, keysAndValues ...any) {
	current().Errorw(msg, keysAndValues...)
}

func Fatal(args ...any) {
	current().Fatal(args...)
}

func Fatalf(format string, args ...any) {
	current().Fatalf(format, args...)
}
