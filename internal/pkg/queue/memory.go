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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/safe"
)

// MemoryBroker is an in-process Broker. Tasks wait in an unbounded FIFO and
// are drained by a fixed pool of workers; a failed task is redelivered until
// MaxRetry is exhausted.
type MemoryBroker struct {
	cfg      Conf
	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*Task
	inflight int
	seen     map[string]time.Time
	handlers map[string]Handler
	started  bool
	closed   bool
	wg       sync.WaitGroup
}

func NewMemoryBroker(cfg Conf) *MemoryBroker {
	cfg.SetDefaults()
	b := &MemoryBroker{
		cfg:      cfg,
		seen:     make(map[string]time.Time),
		handlers: make(map[string]Handler),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *MemoryBroker) Enqueue(_ context.Context, taskType, taskID string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	if taskID == "" {
		taskID = id.ULID()
	}
	now := time.Now()
	if at, ok := b.seen[taskID]; ok && now.Sub(at) < b.cfg.Retention {
		log.Debugw("task already enqueued", "task_id", taskID, "task_type", taskType)
		return nil
	}
	b.seen[taskID] = now
	b.pruneSeen(now)
	b.pending = append(b.pending, &Task{ID: taskID, Type: taskType, Payload: payload})
	b.cond.Signal()
	return nil
}

func (b *MemoryBroker) pruneSeen(now time.Time) {
	if len(b.seen) < 4096 {
		return
	}
	for k, at := range b.seen {
		if now.Sub(at) >= b.cfg.Retention {
			delete(b.seen, k)
		}
	}
}

func (b *MemoryBroker) RegisterHandler(taskType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[taskType] = handler
}

func (b *MemoryBroker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	if b.started {
		return nil
	}
	b.started = true
	for i := 0; i < b.cfg.Concurrency; i++ {
		b.wg.Add(1)
		safe.Go(func() {
			defer b.wg.Done()
			b.work()
		})
	}
	log.Infow("memory broker started", "workers", b.cfg.Concurrency)
	return nil
}

// next blocks until a task is available. It returns nil once the broker is
// closed and drained.
func (b *MemoryBroker) next() (*Task, Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.pending) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.pending) == 0 {
		return nil, nil
	}
	t := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]
	b.inflight++
	return t, b.handlers[t.Type]
}

func (b *MemoryBroker) work() {
	for {
		task, handler := b.next()
		if task == nil {
			return
		}
		err := b.run(task, handler)

		b.mu.Lock()
		b.inflight--
		if err != nil {
			task.Attempt++
			if task.Attempt <= b.cfg.MaxRetry && !b.closed {
				b.pending = append(b.pending, task)
			} else {
				log.Errorw("task dropped after retries", "task_id", task.ID, "task_type", task.Type, "attempts", task.Attempt, "error", err)
			}
		}
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

func (b *MemoryBroker) run(task *Task, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("no handler for task type %s", task.Type)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()
	err := safe.Call(func() error { return handler.HandleTask(ctx, task) })
	if err != nil {
		log.Warnw("task failed", "task_id", task.ID, "task_type", task.Type, "attempt", task.Attempt, "error", err)
	}
	return err
}

// WaitIdle blocks until no task is pending or running.
func (b *MemoryBroker) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.pending) > 0 || b.inflight > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.cond.Wait()
	}
	return nil
}

// Shutdown stops accepting tasks and waits for the workers to drain the queue.
func (b *MemoryBroker) Shutdown() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	b.wg.Wait()
	log.Info("memory broker stopped")
}
