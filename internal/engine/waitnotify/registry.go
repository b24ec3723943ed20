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

// Package waitnotify is the rendezvous between parents and the children they
// wait on. A wait fires once, when every correlation id it names has been
// resolved, regardless of arrival order.
package waitnotify

import (
	"context"
	"errors"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
)

var (
	ErrNoCorrelationIDs = errors.New("wait needs at least one correlation id")
	ErrClosed           = errors.New("registry closed")
)

type CallbackKind string

const (
	// CallbackResumeParent resumes ParentID with the collected responses.
	CallbackResumeParent CallbackKind = "RESUME_PARENT"
	// CallbackMaxConcurrency frees one admission slot of ParentID when ChildID ends.
	CallbackMaxConcurrency CallbackKind = "MAX_CONCURRENCY"
)

// Callback is a serializable descriptor of what to do when a wait fires.
type Callback struct {
	Kind     CallbackKind `json:"kind"`
	ParentID string       `json:"parentId"`
	ChildID  string       `json:"childId,omitempty"`
}

// Notification is a fired wait. Responses holds one entry per correlation id.
type Notification struct {
	WaitID    string                        `json:"waitId"`
	Callback  Callback                      `json:"callback"`
	Responses map[string]model.ResponseData `json:"responses"`
}

type Registry interface {
	// WaitForAll registers cb to fire once all correlationIDs are resolved
	// and returns the wait id.
	WaitForAll(ctx context.Context, correlationIDs []string, cb Callback, opts ...WaitOption) (string, error)
	// Resolve records the response for correlationID. Resolving the same id
	// twice is a no-op.
	Resolve(ctx context.Context, correlationID string, payload model.ResponseData) error
	// Notifications delivers every fired wait exactly once.
	Notifications() <-chan Notification
	Close() error
}

type waitOptions struct {
	waitID string
}

type WaitOption func(*waitOptions)

// WithWaitID fixes the wait id so a repeated registration is a no-op.
func WithWaitID(id string) WaitOption {
	return func(o *waitOptions) { o.waitID = id }
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Conf is the waitNotify section of the orchestrator config.
type Conf struct {
	Backend string `mapstructure:"backend"`
	// Retention bounds how long resolved responses and fired waits are kept.
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	// PollTimeout is the blocking pop timeout of the redis consumer.
	PollTimeout time.Duration `mapstructure:"pollTimeout"`
	Buffer      int           `mapstructure:"buffer"`
}

func (c *Conf) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Retention == 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 5 * time.Second
	}
	if c.Buffer == 0 {
		c.Buffer = 64
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
