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

// Package planexec keeps a plan execution's status in step with its nodes.
package planexec

import (
	"context"
	"fmt"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/pkg/log"
)

type Service struct {
	nodes      repo.INodeExecutionRepository
	executions repo.IPlanExecutionRepository
}

func NewService(repos *repo.Repositories) *Service {
	return &Service{nodes: repos.Nodes, executions: repos.PlanExecutions}
}

// CalculateAndUpdateRunningStatus sets the execution to the most active
// status among its nodes. A concluded execution is left alone.
func (s *Service) CalculateAndUpdateRunningStatus(ctx context.Context, planExecutionID string) error {
	statuses, err := s.nodes.ListStatusesByPlanExecution(ctx, planExecutionID)
	if err != nil {
		return fmt.Errorf("list node statuses of %s: %w", planExecutionID, err)
	}
	status := model.AggregateRunningStatus(statuses)
	if status == model.StatusNoOp {
		return nil
	}
	written, err := s.executions.UpdateStatus(ctx, planExecutionID, status, model.NonFinalStatuses())
	if err != nil {
		return fmt.Errorf("update plan execution %s: %w", planExecutionID, err)
	}
	if written {
		log.Debugw("plan execution status refreshed", "plan_execution_id", planExecutionID, "status", status)
	}
	return nil
}

// Conclude writes the root node's final status onto the execution.
func (s *Service) Conclude(ctx context.Context, planExecutionID string, status model.Status) error {
	if !status.IsFinal() {
		return fmt.Errorf("conclude %s with non-final status %s", planExecutionID, status)
	}
	written, err := s.executions.UpdateStatus(ctx, planExecutionID, status, model.NonFinalStatuses())
	if err != nil {
		return fmt.Errorf("conclude plan execution %s: %w", planExecutionID, err)
	}
	if written {
		log.Infow("plan execution concluded", "plan_execution_id", planExecutionID, "status", status)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, planExecutionID string) (*model.PlanExecution, error) {
	return s.executions.Get(ctx, planExecutionID)
}
