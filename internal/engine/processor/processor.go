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

// Package processor applies inbound step executor events to node state. Every
// handler is safe under redelivery of the same event.
package processor

import (
	"context"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/pkg/errors"
)

// ErrContractViolation marks an event the sender should never have produced.
// Such events are dropped, not retried.
var ErrContractViolation = errors.New("contract violation")

func violation(format string, args ...any) error {
	return errors.Wrapf(ErrContractViolation, format, args...)
}

// Engine is the part of the orchestration engine the handlers drive.
type Engine interface {
	InitiateNode(ctx context.Context, parent model.Ambiance, nodeID, runtimeID string, strategy *model.StrategyMetadata, mode event.InitiateMode) error
	ResumeNodeExecution(ctx context.Context, a model.Ambiance, responses map[string]model.ResponseData, asyncError bool) error
	ConcludeNode(ctx context.Context, node *model.NodeExecution) error
}

type PlanExecutionService interface {
	CalculateAndUpdateRunningStatus(ctx context.Context, planExecutionID string) error
}

type Deps struct {
	Nodes          repo.INodeExecutionRepository
	Waits          waitnotify.Registry
	Admission      *concurrency.Controller
	Engine         Engine
	PlanExecutions PlanExecutionService
	Metrics        *metrics.Orchestration
}

type base struct {
	Deps
	now func() time.Time
}

// transition moves the node to status when its current status has a legal
// edge into status. When the guard loses, fallback (if any) is applied
// without touching status. A node that reaches a final status is concluded.
func (b *base) transition(ctx context.Context, nodeID string, status model.Status, mutate, fallback repo.Mutation) (*model.NodeExecution, error) {
	if status.IsFinal() {
		mutate = repo.Mutations(mutate, repo.Finish(b.now(), nil))
	}
	if status == model.StatusRunning {
		mutate = repo.Mutations(mutate, repo.SetStartTs(b.now()))
	}
	n, err := b.Nodes.UpdateStatusGuarded(ctx, nodeID, status, mutate, model.AllowedFrom(status))
	if err != nil {
		return nil, err
	}
	b.Metrics.StatusWritten(string(status), n != nil)
	if n == nil {
		log.Infow("status transition lost race",
			"node_execution_id", nodeID,
			"status", status,
		)
		if fallback != nil {
			if _, err := b.Nodes.UpdateUnconditional(ctx, nodeID, fallback); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if status.IsFinal() {
		if err := b.Engine.ConcludeNode(ctx, n); err != nil {
			return n, err
		}
	}
	return n, nil
}

// abortHalted finishes a parent whose fan-out was stopped by an interrupt.
func (b *base) abortHalted(ctx context.Context, node *model.NodeExecution, interrupt model.InterruptEffect) error {
	log.Infow("fan-out stopped by interrupt",
		"node_execution_id", node.ID,
		"interrupt_id", interrupt.InterruptID,
		"interrupt_type", interrupt.Type,
	)
	_, err := b.transition(ctx, node.ID, interrupt.HaltStatus(), nil, nil)
	return err
}
