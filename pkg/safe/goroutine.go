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

package safe

import (
	"fmt"
	"runtime/debug"

	"github.com/go-arcade/orchestrator/pkg/log"
)

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Go runs f on a new goroutine, logging any panic instead of crashing.
func Go(f func()) {
	go func() {
		if err := Do(f); err != nil {
			log.Errorw("goroutine panicked", "error", err, "stack", string(err.(*PanicError).Stack))
		}
	}()
}

// Do runs f and converts a panic into a *PanicError.
func Do(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	f()
	return nil
}

// Call runs f and returns its error, or a *PanicError if f panicked.
func Call(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return f()
}
