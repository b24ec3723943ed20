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

package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyLocker struct{}

func (denyLocker) TryLock(context.Context, string, time.Duration) (bool, error) { return false, nil }

type memRecorder struct {
	mu   sync.Mutex
	runs map[string]int
	errs int
}

func (r *memRecorder) RecordJobRun(job string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[job]++
	if err != nil {
		r.errs++
	}
}

func (r *memRecorder) UpdateNextRun(string, time.Time) {}

func (r *memRecorder) count(job string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[job]
}

func TestScheduler_AddFunc(t *testing.T) {
	s := New()
	require.NoError(t, s.AddFunc("sweep", "@every 1s", func(context.Context) error { return nil }))
	assert.ErrorIs(t, s.AddFunc("sweep", "@every 1s", nil), ErrDuplicateJob)
	assert.Error(t, s.AddFunc("bad", "not a spec", nil))

	s.Remove("sweep")
	require.NoError(t, s.AddFunc("sweep", "*/5 * * * * *", func(context.Context) error { return nil }))
}

func TestScheduler_RunsAndRecords(t *testing.T) {
	rec := &memRecorder{runs: map[string]int{}}
	s := New(WithRecorder(rec))

	var calls atomic.Int32
	require.NoError(t, s.AddFunc("tick", "@every 1s", func(context.Context) error {
		calls.Add(1)
		return errors.New("expected")
	}))
	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	assert.Eventually(t, func() bool { return rec.count("tick") >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestScheduler_LockerSkips(t *testing.T) {
	s := New(WithLocker(denyLocker{}, time.Second))
	var calls atomic.Int32
	s.run("held", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	assert.Equal(t, int32(0), calls.Load())
}

func TestScheduler_PanicIsContained(t *testing.T) {
	rec := &memRecorder{runs: map[string]int{}}
	s := New(WithRecorder(rec))
	assert.NotPanics(t, func() {
		s.run("boom", func(context.Context) error { panic("bad job") })
	})
	assert.Equal(t, 1, rec.errs)
}
