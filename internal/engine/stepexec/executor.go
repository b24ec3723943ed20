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

// Package stepexec is an in-process step executor. Container nodes answer
// with the children their plan node lists; leaf nodes are run by a Runner.
package stepexec

import (
	"context"
	"fmt"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
)

type NodeSource interface {
	Node(ctx context.Context, planID, nodeID string) (*model.PlanNode, error)
}

type Sink interface {
	Submit(ctx context.Context, e *event.SdkResponseEvent) error
}

// Runner runs a leaf step. A NO_OP status leaves the node running.
type Runner interface {
	Run(ctx context.Context, e *event.InitiateNodeEvent) (model.Status, *model.FailureInfo)
}

type RunnerFunc func(ctx context.Context, e *event.InitiateNodeEvent) (model.Status, *model.FailureInfo)

func (f RunnerFunc) Run(ctx context.Context, e *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
	return f(ctx, e)
}

type Executor struct {
	nodes  NodeSource
	sink   Sink
	runner Runner
}

func NewExecutor(nodes NodeSource, sink Sink, runner Runner) *Executor {
	return &Executor{nodes: nodes, sink: sink, runner: runner}
}

// Subscribe makes x the consumer of initiations published on broker.
func (x *Executor) Subscribe(broker queue.Broker) {
	broker.RegisterHandler(event.TaskTypeInitiateNode, queue.HandlerFunc(func(ctx context.Context, t *queue.Task) error {
		e, err := event.DecodeInitiateNode(t.Payload)
		if err != nil {
			log.Errorw("drop undecodable initiation", "task_id", t.ID, "error", err)
			return nil
		}
		return x.Execute(ctx, e)
	}))
}

// Execute answers one initiation. Every event it submits has an id derived
// from the runtime id, so executing the same initiation twice is harmless.
func (x *Executor) Execute(ctx context.Context, e *event.InitiateNodeEvent) error {
	pn, err := x.nodes.Node(ctx, e.Ambiance.PlanID, e.NodeID)
	if err != nil {
		return fmt.Errorf("execute %s: %w", e.RuntimeID, err)
	}
	if len(pn.Children) > 0 {
		return x.sink.Submit(ctx, spawn(e, pn))
	}

	started := event.NewProgress(e.Ambiance, model.StatusNoOp, `{"phase":"started"}`)
	started.ID = id.Derive("started", e.RuntimeID)
	if err := x.sink.Submit(ctx, started); err != nil {
		return err
	}
	status, failure := x.runner.Run(ctx, e)
	if status == "" || status == model.StatusNoOp {
		return nil
	}
	log.Debugw("step finished", "node_execution_id", e.RuntimeID, "status", status)
	done := event.NewStepResponse(e.Ambiance, status, failure)
	done.ID = id.Derive("step-response", e.RuntimeID)
	return x.sink.Submit(ctx, done)
}

func spawn(e *event.InitiateNodeEvent, pn *model.PlanNode) *event.SdkResponseEvent {
	var ev *event.SdkResponseEvent
	switch {
	case pn.StepType.Type == model.StepTypeChain:
		ev = event.NewSpawnChild(e.Ambiance, model.ExecutableResponse{
			Kind: model.ModeChildChain,
			ChildChain: &model.ChildChainResponse{
				NextChildID: pn.Children[0],
				ChainEnd:    len(pn.Children) == 1,
			},
		})
	case len(pn.Children) == 1 && pn.Iterations == 0:
		ev = event.NewSpawnChild(e.Ambiance, model.ExecutableResponse{
			Kind:  model.ModeChild,
			Child: &model.ChildResponse{ChildNodeID: pn.Children[0]},
		})
	default:
		ev = event.NewSpawnChildren(e.Ambiance, model.ExecutableResponse{
			Kind:     model.ModeChildren,
			Children: &model.ChildrenResponse{Children: childSpecs(pn), MaxConcurrency: pn.MaxConcurrency},
		})
	}
	ev.ID = id.Derive("spawn", e.RuntimeID)
	return ev
}

// childSpecs expands a strategy node into one spec per iteration of its
// first child; other nodes get one spec per child.
func childSpecs(pn *model.PlanNode) []model.ChildSpec {
	if pn.Iterations > 0 {
		specs := make([]model.ChildSpec, pn.Iterations)
		for i := range specs {
			specs[i] = model.ChildSpec{
				ChildNodeID: pn.Children[0],
				StrategyMetadata: &model.StrategyMetadata{
					CurrentIteration: i,
					TotalIterations:  pn.Iterations,
					Identifier:       fmt.Sprintf("%s_%d", pn.Identifier, i),
				},
			}
		}
		return specs
	}
	specs := make([]model.ChildSpec, len(pn.Children))
	for i, child := range pn.Children {
		specs[i] = model.ChildSpec{ChildNodeID: child}
	}
	return specs
}
