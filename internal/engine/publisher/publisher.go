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

// Package publisher hands node initiations to step executors.
package publisher

import (
	"context"
	"fmt"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
)

type Publisher interface {
	PublishInitiation(ctx context.Context, e *event.InitiateNodeEvent) error
}

// QueuePublisher enqueues initiations on a broker under the node:initiate
// task type. The event id doubles as the task id.
type QueuePublisher struct {
	broker queue.Broker
}

func NewQueuePublisher(broker queue.Broker) *QueuePublisher {
	return &QueuePublisher{broker: broker}
}

func (p *QueuePublisher) PublishInitiation(ctx context.Context, e *event.InitiateNodeEvent) error {
	payload, err := event.Encode(e)
	if err != nil {
		return fmt.Errorf("encode initiation of %s: %w", e.RuntimeID, err)
	}
	return p.broker.Enqueue(ctx, event.TaskTypeInitiateNode, e.ID, payload)
}

// FuncPublisher calls an in-process executor directly.
type FuncPublisher func(ctx context.Context, e *event.InitiateNodeEvent) error

func (f FuncPublisher) PublishInitiation(ctx context.Context, e *event.InitiateNodeEvent) error {
	return f(ctx, e)
}
