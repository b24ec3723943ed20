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

package processor

import (
	"context"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/pkg/errors"
)

// Bus carries inbound events over the task broker. The event id is the task
// id, so a resubmitted event is delivered at most once per retention window.
type Bus struct {
	broker queue.Broker
}

func NewBus(broker queue.Broker) *Bus {
	return &Bus{broker: broker}
}

func (b *Bus) Submit(ctx context.Context, e *event.SdkResponseEvent) error {
	payload, err := event.Encode(e)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", e.Kind)
	}
	return b.broker.Enqueue(ctx, event.TaskTypeSdkResponse, e.ID, payload)
}

// Subscribe routes delivered events to d. Malformed events and contract
// violations are logged and acknowledged; other errors are redelivered.
func (b *Bus) Subscribe(d *Dispatcher) {
	b.broker.RegisterHandler(event.TaskTypeSdkResponse, queue.HandlerFunc(func(ctx context.Context, t *queue.Task) error {
		e, err := event.DecodeSdkResponse(t.Payload)
		if err != nil {
			log.Errorw("drop undecodable event", "task_id", t.ID, "error", err)
			return nil
		}
		err = d.Dispatch(ctx, e)
		if errors.Is(err, ErrContractViolation) {
			log.Errorw("drop event",
				"event_id", e.ID,
				"kind", e.Kind,
				"node_execution_id", e.NodeExecutionID(),
				"error", err,
			)
			return nil
		}
		if err != nil {
			log.Warnw("event failed, will be redelivered",
				"event_id", e.ID,
				"kind", e.Kind,
				"attempt", t.Attempt,
				"error", err,
			)
		}
		return err
	}))
}
