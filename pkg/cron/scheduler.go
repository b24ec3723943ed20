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
	"fmt"
	"sync"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/safe"
	"github.com/robfig/cron/v3"
)

var ErrDuplicateJob = errors.New("cron job already registered")

// JobFunc is one scheduled run. The context is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Locker grants at most one replica the right to run a job tick.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Recorder observes job runs.
type Recorder interface {
	RecordJobRun(job string, d time.Duration, err error)
	UpdateNextRun(job string, next time.Time)
}

type Option func(*Scheduler)

func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		s.lockTTL = ttl
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// Scheduler runs named jobs on cron specs. Specs accept an optional seconds
// field and descriptors such as @every 30s.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	locker   Locker
	lockTTL  time.Duration
	recorder Recorder
	location *time.Location

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		entries:  make(map[string]cron.EntryID),
		location: time.UTC,
		lockTTL:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
		)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// AddFunc registers fn under name.
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("parse spec %q for %s: %w", spec, name, err)
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Next returns the next run time of name, or zero if unknown or not started.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(name string, fn JobFunc) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(s.ctx, "cron:"+name, s.lockTTL)
		if err != nil {
			log.Warnw("cron lock failed", "job", name, "error", err)
			return
		}
		if !ok {
			return
		}
	}

	began := time.Now()
	err := safe.Call(func() error { return fn(s.ctx) })
	if err != nil {
		log.Errorw("cron job failed", "job", name, "error", err)
	}
	if s.recorder != nil {
		s.recorder.RecordJobRun(name, time.Since(began), err)
		s.recorder.UpdateNextRun(name, s.Next(name))
	}
}
