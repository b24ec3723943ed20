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

package waitnotify

import (
	"context"
	"sync"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/safe"
)

type storedResponse struct {
	payload model.ResponseData
	at      time.Time
}

type pendingWait struct {
	id       string
	callback Callback
	keys     []string
	pending  map[string]struct{}
}

// registryState is owned by the actor goroutine and never shared.
type registryState struct {
	waits     map[string]*pendingWait
	byKey     map[string]map[string]struct{}
	responses map[string]storedResponse
	fired     map[string]time.Time
	now       func() time.Time
}

func (s *registryState) fire(w *pendingWait) Notification {
	n := Notification{
		WaitID:    w.id,
		Callback:  w.callback,
		Responses: make(map[string]model.ResponseData, len(w.keys)),
	}
	for _, k := range w.keys {
		n.Responses[k] = s.responses[k].payload
	}
	delete(s.waits, w.id)
	s.fired[w.id] = s.now()
	return n
}

func (s *registryState) sweep(retention time.Duration) {
	cutoff := s.now().Add(-retention)
	for k, r := range s.responses {
		if r.at.Before(cutoff) && len(s.byKey[k]) == 0 {
			delete(s.responses, k)
		}
	}
	for w, at := range s.fired {
		if at.Before(cutoff) {
			delete(s.fired, w)
		}
	}
}

func newRegistryState(now func() time.Time) *registryState {
	return &registryState{
		waits:     make(map[string]*pendingWait),
		byKey:     make(map[string]map[string]struct{}),
		responses: make(map[string]storedResponse),
		fired:     make(map[string]time.Time),
		now:       now,
	}
}

type command struct {
	apply func(*registryState) ([]Notification, error)
	reply chan error
}

// MemoryRegistry is a single process Registry. One goroutine owns all state;
// callers talk to it through commands.
type MemoryRegistry struct {
	cfg      Conf
	commands chan command
	out      chan Notification
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func NewMemoryRegistry(cfg Conf) *MemoryRegistry {
	cfg.SetDefaults()
	r := &MemoryRegistry{
		cfg:      cfg,
		commands: make(chan command),
		out:      make(chan Notification),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	safe.Go(r.loop)
	return r
}

func (r *MemoryRegistry) loop() {
	defer close(r.stopped)
	defer close(r.out)

	state := newRegistryState(time.Now)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	var outbox []Notification
	for {
		var (
			sendCh chan Notification
			head   Notification
		)
		if len(outbox) > 0 {
			sendCh, head = r.out, outbox[0]
		}
		select {
		case cmd := <-r.commands:
			fired, err := cmd.apply(state)
			outbox = append(outbox, fired...)
			cmd.reply <- err
		case sendCh <- head:
			outbox[0] = Notification{}
			outbox = outbox[1:]
		case <-ticker.C:
			state.sweep(r.cfg.Retention)
		case <-r.done:
			if len(outbox) > 0 {
				log.Warnw("wait registry closed with undelivered notifications", "count", len(outbox))
			}
			return
		}
	}
}

func (r *MemoryRegistry) exec(ctx context.Context, apply func(*registryState) ([]Notification, error)) error {
	cmd := command{apply: apply, reply: make(chan error, 1)}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.reply
}

func (r *MemoryRegistry) WaitForAll(ctx context.Context, correlationIDs []string, cb Callback, opts ...WaitOption) (string, error) {
	keys := dedupe(correlationIDs)
	if len(keys) == 0 {
		return "", ErrNoCorrelationIDs
	}
	o := waitOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.waitID == "" {
		o.waitID = id.Xid()
	}

	err := r.exec(ctx, func(s *registryState) ([]Notification, error) {
		if _, ok := s.waits[o.waitID]; ok {
			return nil, nil
		}
		if _, ok := s.fired[o.waitID]; ok {
			return nil, nil
		}
		w := &pendingWait{id: o.waitID, callback: cb, keys: keys, pending: make(map[string]struct{})}
		for _, k := range keys {
			if _, resolved := s.responses[k]; resolved {
				continue
			}
			w.pending[k] = struct{}{}
			if s.byKey[k] == nil {
				s.byKey[k] = make(map[string]struct{})
			}
			s.byKey[k][w.id] = struct{}{}
		}
		if len(w.pending) == 0 {
			return []Notification{s.fire(w)}, nil
		}
		s.waits[w.id] = w
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return o.waitID, nil
}

func (r *MemoryRegistry) Resolve(ctx context.Context, correlationID string, payload model.ResponseData) error {
	return r.exec(ctx, func(s *registryState) ([]Notification, error) {
		if _, ok := s.responses[correlationID]; ok {
			return nil, nil
		}
		s.responses[correlationID] = storedResponse{payload: payload, at: s.now()}

		var fired []Notification
		for waitID := range s.byKey[correlationID] {
			w := s.waits[waitID]
			if w == nil {
				continue
			}
			delete(w.pending, correlationID)
			if len(w.pending) == 0 {
				fired = append(fired, s.fire(w))
			}
		}
		delete(s.byKey, correlationID)
		return fired, nil
	})
}

func (r *MemoryRegistry) Notifications() <-chan Notification {
	return r.out
}

func (r *MemoryRegistry) Close() error {
	r.once.Do(func() { close(r.done) })
	<-r.stopped
	return nil
}
