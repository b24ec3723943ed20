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
	"maps"
	"slices"

	"github.com/go-arcade/orchestrator/internal/engine/model"
)

// Outcome is what a continuation decided. A non-nil Response re-enters the
// processors; otherwise Status (if any) is applied to the node.
type Outcome struct {
	Status   model.Status
	Response *model.ExecutableResponse
	Failure  *model.FailureInfo
}

// Continuation resumes a node once the children it waited on are done.
type Continuation interface {
	Resume(ctx context.Context, node *model.NodeExecution, responses map[string]model.ResponseData, asyncError bool) (Outcome, error)
}

type ContinuationFunc func(ctx context.Context, node *model.NodeExecution, responses map[string]model.ResponseData, asyncError bool) (Outcome, error)

func (f ContinuationFunc) Resume(ctx context.Context, node *model.NodeExecution, responses map[string]model.ResponseData, asyncError bool) (Outcome, error) {
	return f(ctx, node, responses, asyncError)
}

// Continuations maps step types to continuations. Unknown types aggregate.
type Continuations struct {
	byType   map[string]Continuation
	fallback Continuation
}

func NewContinuations(byType map[string]Continuation) *Continuations {
	return &Continuations{byType: maps.Clone(byType), fallback: AggregateContinuation}
}

// DefaultContinuations is the table the engine starts with.
func DefaultContinuations(plans PlanSource) *Continuations {
	return NewContinuations(map[string]Continuation{
		model.StepTypeChain: ChainContinuation(plans),
	})
}

func (c *Continuations) For(t model.StepType) Continuation {
	if cont, ok := c.byType[t.Type]; ok {
		return cont
	}
	return c.fallback
}

// AggregateContinuation finishes a container node with the combined outcome
// of its children.
var AggregateContinuation = ContinuationFunc(func(_ context.Context, _ *model.NodeExecution, responses map[string]model.ResponseData, asyncError bool) (Outcome, error) {
	if asyncError {
		return Outcome{
			Status:  model.StatusFailed,
			Failure: &model.FailureInfo{Message: "async callback reported an error", ErrorType: "ASYNC"},
		}, nil
	}
	return aggregate(responses), nil
})

func aggregate(responses map[string]model.ResponseData) Outcome {
	statuses := make([]model.Status, 0, len(responses))
	var failed []string
	for _, r := range responses {
		statuses = append(statuses, r.Status)
		if r.Status == model.StatusFailed || r.Status == model.StatusErrored {
			failed = append(failed, r.Identifier)
		}
	}
	out := Outcome{Status: model.AggregateFinalStatus(statuses)}
	if out.Status == model.StatusFailed {
		slices.Sort(failed)
		out.Failure = &model.FailureInfo{
			Message:   fmt.Sprintf("%d child node(s) failed", len(failed)),
			ErrorType: "CHILD_FAILURE",
			Details:   failed,
		}
	}
	return out
}

// ChainContinuation spawns the next child of the plan node after the
// previous one succeeded, and aggregates once the chain ends or breaks.
func ChainContinuation(plans PlanSource) Continuation {
	return ContinuationFunc(func(ctx context.Context, node *model.NodeExecution, responses map[string]model.ResponseData, asyncError bool) (Outcome, error) {
		if asyncError {
			return AggregateContinuation(ctx, node, responses, asyncError)
		}
		out := aggregate(responses)
		if out.Status != model.StatusSucceeded {
			return out, nil
		}
		pn, err := plans.Node(ctx, node.Ambiance.PlanID, node.NodeID)
		if err != nil {
			return Outcome{}, err
		}
		var last *model.ChildChainResponse
		for i := len(node.ExecutableResponses) - 1; i >= 0; i-- {
			if r := node.ExecutableResponses[i]; r.Kind == model.ModeChildChain && r.ChildChain != nil {
				last = r.ChildChain
				break
			}
		}
		if last == nil || last.ChainEnd {
			return out, nil
		}
		// positions, not ids: a chain may list the same child twice
		next := last.ChainIndex + 1
		if next >= len(pn.Children) {
			return out, nil
		}
		return Outcome{Response: &model.ExecutableResponse{
			Kind: model.ModeChildChain,
			ChildChain: &model.ChildChainResponse{
				NextChildID:     pn.Children[next],
				PreviousChildID: last.NextChildID,
				ChainIndex:      next,
				ChainEnd:        next+1 == len(pn.Children),
			},
		}}, nil
	})
}
