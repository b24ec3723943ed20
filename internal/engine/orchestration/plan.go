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
	"errors"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/pkg/cache"
	"github.com/go-arcade/orchestrator/pkg/dag"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidPlan = errors.New("invalid plan")

// PlanSource stores plans and serves their nodes.
type PlanSource interface {
	SavePlan(ctx context.Context, plan *model.Plan) error
	Node(ctx context.Context, planID, nodeID string) (*model.PlanNode, error)
}

// CachedPlanSource keeps plan nodes in a cache. Stored plans never change, so
// entries are never invalidated.
type CachedPlanSource struct {
	plans repo.IPlanRepository
	nodes *cache.CachedQuery[*model.PlanNode]
}

// NewCachedPlanSource caches plan nodes in process.
func NewCachedPlanSource(plans repo.IPlanRepository, maxBytes int) *CachedPlanSource {
	return newPlanSource(plans, cache.NewFastCache(maxBytes))
}

// NewSharedPlanSource caches plan nodes in process and in redis, so replicas
// load each node from the store once between them.
func NewSharedPlanSource(plans repo.IPlanRepository, maxBytes int, client redis.UniversalClient) *CachedPlanSource {
	return newPlanSource(plans, cache.NewTiered(cache.NewFastCache(maxBytes), cache.NewRedisCache(client, "orchestrator:"), 0.5))
}

func newPlanSource(plans repo.IPlanRepository, c cache.Cache) *CachedPlanSource {
	return &CachedPlanSource{
		plans: plans,
		nodes: cache.NewCachedQuery[*model.PlanNode](c, "plan-node:", 24*time.Hour),
	}
}

func (s *CachedPlanSource) SavePlan(ctx context.Context, plan *model.Plan) error {
	return s.plans.SavePlan(ctx, plan)
}

func (s *CachedPlanSource) Node(ctx context.Context, planID, nodeID string) (*model.PlanNode, error) {
	return s.nodes.Get(ctx, planID+"/"+nodeID, func(ctx context.Context) (*model.PlanNode, error) {
		return s.plans.GetNode(ctx, planID, nodeID)
	})
}

func validatePlan(plan *model.Plan) error {
	if plan.UUID == "" {
		return fmt.Errorf("%w: plan has no uuid", ErrInvalidPlan)
	}
	seen := make(map[string]struct{}, len(plan.Nodes))
	for _, n := range plan.Nodes {
		if n.UUID == "" {
			return fmt.Errorf("%w: node %q has no uuid", ErrInvalidPlan, n.Identifier)
		}
		seen[n.UUID] = struct{}{}
	}
	if _, ok := seen[plan.RootNodeID]; !ok {
		return fmt.Errorf("%w: root node %q not in plan", ErrInvalidPlan, plan.RootNodeID)
	}
	edges := make(map[string][]string, len(plan.Nodes))
	for _, n := range plan.Nodes {
		edges[n.UUID] = n.Children
	}
	if err := dag.Check(edges); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

// StartPlan stores plan, opens a RUNNING execution of it and starts its root
// node.
func (e *Engine) StartPlan(ctx context.Context, plan *model.Plan, metadata model.ExecutionMetadata, setup map[string]string) (*model.PlanExecution, error) {
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	if err := e.plans.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", plan.UUID, err)
	}
	if metadata.ExecutionMode == "" {
		metadata.ExecutionMode = model.RunModeNormal
	}
	pe, _, err := e.executions.Create(ctx, &model.PlanExecution{
		ID:       id.Xid(),
		PlanID:   plan.UUID,
		Status:   model.StatusRunning,
		Metadata: metadata,
		StartTs:  e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create plan execution of %s: %w", plan.UUID, err)
	}

	root := model.Ambiance{
		PlanExecutionID:   pe.ID,
		PlanID:            plan.UUID,
		SetupAbstractions: setup,
		Levels:            []model.Level{},
		Metadata:          metadata,
	}
	if err := e.InitiateNode(ctx, root, plan.RootNodeID, id.Derive(pe.ID, plan.RootNodeID), nil, event.InitiateCreateAndStart); err != nil {
		return pe, err
	}
	log.Infow("plan execution started",
		"plan_execution_id", pe.ID,
		"plan_id", plan.UUID,
		"mode", metadata.ExecutionMode,
		"triggered_by", metadata.TriggeredBy,
	)
	return pe, nil
}
