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

package model

import (
	"slices"

	"github.com/go-arcade/orchestrator/pkg/statemachine"
)

type Status string

const (
	StatusQueued              Status = "QUEUED"
	StatusRunning             Status = "RUNNING"
	StatusAsyncWaiting        Status = "ASYNC_WAITING"
	StatusTaskWaiting         Status = "TASK_WAITING"
	StatusInterventionWaiting Status = "INTERVENTION_WAITING"
	StatusPaused              Status = "PAUSED"
	StatusDiscontinuing       Status = "DISCONTINUING"

	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusErrored   Status = "ERRORED"
	StatusAborted   Status = "ABORTED"
	StatusExpired   Status = "EXPIRED"
	StatusSkipped   Status = "SKIPPED"

	// StatusNoOp means the event requests no status change.
	StatusNoOp Status = "NO_OP"
)

var (
	nonFinal = []Status{
		StatusQueued, StatusRunning, StatusAsyncWaiting, StatusTaskWaiting,
		StatusInterventionWaiting, StatusPaused, StatusDiscontinuing,
	}
	final = []Status{
		StatusSucceeded, StatusFailed, StatusErrored,
		StatusAborted, StatusExpired, StatusSkipped,
	}
	// waiting statuses a running node may park in and return from
	waiting = []Status{
		StatusAsyncWaiting, StatusTaskWaiting, StatusInterventionWaiting, StatusPaused,
	}
)

// transitions is the legal status graph. Every final status is reachable from
// every non-final one; final statuses have no outgoing edges.
var transitions = func() *statemachine.StateMachine[Status] {
	sm := statemachine.New[Status]()
	sm.Allow(StatusQueued, StatusRunning)
	sm.Allow(StatusRunning, append([]Status{StatusRunning, StatusDiscontinuing}, waiting...)...)
	for _, w := range waiting {
		sm.Allow(w, StatusRunning, StatusDiscontinuing)
		sm.Allow(w, waiting...)
	}
	sm.Allow(StatusQueued, StatusDiscontinuing)
	for _, from := range nonFinal {
		sm.Allow(from, final...)
	}
	return sm
}()

func (s Status) IsFinal() bool {
	return slices.Contains(final, s)
}

func (s Status) IsValid() bool {
	return s == StatusNoOp || slices.Contains(nonFinal, s) || slices.Contains(final, s)
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	return transitions.CanTransition(from, to)
}

// AllowedFrom returns every status with a legal edge into target, in a stable order.
func AllowedFrom(target Status) []Status {
	preds := transitions.Predecessors(target)
	out := make([]Status, 0, len(preds))
	for _, s := range nonFinal {
		if slices.Contains(preds, s) {
			out = append(out, s)
		}
	}
	return out
}

// NonFinalStatuses returns a fresh copy of the non-final set.
func NonFinalStatuses() []Status {
	return slices.Clone(nonFinal)
}

func FinalStatuses() []Status {
	return slices.Clone(final)
}

// runningPriority orders non-final statuses for plan-level aggregation.
var runningPriority = []Status{
	StatusRunning, StatusAsyncWaiting, StatusTaskWaiting,
	StatusInterventionWaiting, StatusPaused, StatusDiscontinuing, StatusQueued,
}

// AggregateRunningStatus picks the most active non-final status in statuses,
// or NO_OP when none is non-final.
func AggregateRunningStatus(statuses []Status) Status {
	for _, s := range runningPriority {
		if slices.Contains(statuses, s) {
			return s
		}
	}
	return StatusNoOp
}

// AggregateFinalStatus folds child outcomes into one final status.
func AggregateFinalStatus(statuses []Status) Status {
	switch {
	case slices.Contains(statuses, StatusFailed), slices.Contains(statuses, StatusErrored):
		return StatusFailed
	case slices.Contains(statuses, StatusAborted):
		return StatusAborted
	case slices.Contains(statuses, StatusExpired):
		return StatusExpired
	default:
		return StatusSucceeded
	}
}
