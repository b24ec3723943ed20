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

// Package retry re-runs an operation with backoff until it succeeds, the
// attempt budget is spent, or the context ends.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Backoff returns how long to wait after the given zero-based attempt.
type Backoff func(attempt int) time.Duration

func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

func Linear(base, ceiling time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return capAt(base*time.Duration(attempt+1), ceiling)
	}
}

func Exponential(base, ceiling time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt > 30 {
			attempt = 30
		}
		return capAt(base<<attempt, ceiling)
	}
}

func capAt(d, ceiling time.Duration) time.Duration {
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

type policy struct {
	attempts int
	backoff  Backoff
	jitter   bool
	retryIf  func(error) bool
	onRetry  func(attempt int, err error)
}

type Option func(*policy)

func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(p *policy) {
		if b != nil {
			p.backoff = b
		}
	}
}

// WithJitter randomizes each wait in [0, wait).
func WithJitter() Option {
	return func(p *policy) { p.jitter = true }
}

func WithRetryIf(fn func(error) bool) Option {
	return func(p *policy) {
		if fn != nil {
			p.retryIf = fn
		}
	}
}

// OnRetry is called before each wait with the attempt that just failed.
func OnRetry(fn func(attempt int, err error)) Option {
	return func(p *policy) { p.onRetry = fn }
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var pe *permanentError
	return !errors.As(err, &pe) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it returns nil. The last error is returned when attempts
// run out; ctx.Err() is returned when the context ends while waiting.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	p := &policy{
		attempts: 3,
		backoff:  Fixed(time.Second),
		retryIf:  retryable,
	}
	for _, opt := range opts {
		opt(p)
	}

	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !p.retryIf(err) || attempt == p.attempts-1 {
			break
		}
		if p.onRetry != nil {
			p.onRetry(attempt, err)
		}

		wait := p.backoff(attempt)
		if p.jitter && wait > 0 {
			wait = time.Duration(rand.Int64N(int64(wait)))
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}
