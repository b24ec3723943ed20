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
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher routes an event to the handler for its kind. The handler table is
// fixed at construction.
type Dispatcher struct {
	deps          Deps
	addResponse   *AddExecutableResponseHandler
	progress      *ProgressHandler
	resume        *ResumeHandler
	spawnChild    *SpawnChildHandler
	spawnChildren *SpawnChildrenHandler
	stepResponse  *StepResponseHandler
}

func NewDispatcher(deps Deps) *Dispatcher {
	b := &base{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
	return &Dispatcher{
		deps:          deps,
		addResponse:   &AddExecutableResponseHandler{b},
		progress:      &ProgressHandler{b},
		resume:        &ResumeHandler{b},
		spawnChild:    &SpawnChildHandler{b},
		spawnChildren: &SpawnChildrenHandler{b},
		stepResponse:  &StepResponseHandler{b},
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, e *event.SdkResponseEvent) (err error) {
	began := time.Now()
	ctx, end := trace.StartSpan(ctx, "processor."+string(e.Kind),
		attribute.String("event.id", e.ID),
		attribute.String("node_execution.id", e.NodeExecutionID()),
		attribute.String("plan_execution.id", e.Ambiance.PlanExecutionID),
	)
	defer func() {
		end(err)
		d.deps.Metrics.ObserveEvent(string(e.Kind), began, err)
	}()

	if err := e.Validate(); err != nil {
		return violation("%v", err)
	}
	switch e.Kind {
	case event.KindAddExecutableResponse:
		return d.addResponse.Handle(ctx, e)
	case event.KindHandleProgress:
		return d.progress.Handle(ctx, e)
	case event.KindResumeNodeExecution:
		return d.resume.Handle(ctx, e)
	case event.KindSpawnChild:
		return d.spawnChild.Handle(ctx, e)
	case event.KindSpawnChildren:
		return d.spawnChildren.Handle(ctx, e)
	case event.KindHandleStepResponse:
		return d.stepResponse.Handle(ctx, e)
	default:
		return violation("unknown event kind %q", e.Kind)
	}
}
