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

package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/retry"
	"github.com/go-arcade/orchestrator/pkg/safe"
)

// Run consumes fired waits until ctx ends or the registry closes.
func (e *Engine) Run(ctx context.Context) error {
	notes := e.waits.Notifications()
	log.Info("notification loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			e.metrics.WaitFired(string(n.Callback.Kind))
			if err := safe.Call(func() error { return e.handleNotification(ctx, n) }); err != nil {
				log.Errorw("notification handling failed",
					"wait_id", n.WaitID,
					"callback", n.Callback.Kind,
					"parent_id", n.Callback.ParentID,
					"error", err,
				)
			}
		}
	}
}

func (e *Engine) handleNotification(ctx context.Context, n waitnotify.Notification) error {
	switch n.Callback.Kind {
	case waitnotify.CallbackResumeParent:
		return e.withRetry(ctx, func(ctx context.Context) error {
			return e.resumeParent(ctx, n)
		})
	case waitnotify.CallbackMaxConcurrency:
		return e.promoteQueued(ctx, n.Callback.ParentID, n.Callback.ChildID)
	default:
		return fmt.Errorf("unknown callback kind %q", n.Callback.Kind)
	}
}

func (e *Engine) resumeParent(ctx context.Context, n waitnotify.Notification) error {
	parent, err := e.nodes.Get(ctx, n.Callback.ParentID)
	if err != nil {
		return err
	}
	ev := event.NewResume(parent.Ambiance, n.Responses, false)
	ev.ID = id.Derive("resume", n.WaitID)
	return e.events.Submit(ctx, ev)
}

// promoteQueued fills the slot childID freed. Advancing is not idempotent, so
// only starting the promoted child is retried.
func (e *Engine) promoteQueued(ctx context.Context, parentID, childID string) error {
	promoted, err := e.admission.OnChildCompleted(ctx, parentID, childID)
	if err != nil || len(promoted) == 0 {
		return err
	}
	parent, err := e.nodes.Get(ctx, parentID)
	if err != nil {
		return err
	}
	for _, next := range promoted {
		if interrupt, halted := parent.HaltingInterrupt(); halted {
			log.Infow("queued child stopped by interrupt",
				"node_execution_id", next,
				"parent_id", parentID,
				"interrupt_id", interrupt.InterruptID,
			)
			if err := e.finish(ctx, next, interrupt.HaltStatus(), nil); err != nil {
				return err
			}
			continue
		}
		if err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.StartNode(ctx, next, event.InitiateStart)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, fn,
		retry.WithMaxAttempts(e.cfg.NotifyAttempts),
		retry.WithBackoff(retry.Exponential(100*time.Millisecond, 5*time.Second)),
	)
}
