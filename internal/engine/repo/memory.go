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

package repo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
)

// NewMemoryRepositories returns process-local stores, for tests and single
// process deployments.
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Nodes:          NewMemoryNodeExecutionRepo(),
		Children:       NewMemoryConcurrentChildRepo(),
		Plans:          NewMemoryPlanRepo(),
		PlanExecutions: NewMemoryPlanExecutionRepo(),
	}
}

// MemoryNodeExecutionRepo keeps deep copies under one mutex so callers never
// share state with the store.
type MemoryNodeExecutionRepo struct {
	mu    sync.Mutex
	nodes map[string]*model.NodeExecution
	now   func() time.Time
}

func NewMemoryNodeExecutionRepo() *MemoryNodeExecutionRepo {
	return &MemoryNodeExecutionRepo{nodes: make(map[string]*model.NodeExecution), now: time.Now}
}

func (r *MemoryNodeExecutionRepo) Get(_ context.Context, id string) (*model.NodeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n.Clone(), nil
}

func (r *MemoryNodeExecutionRepo) Create(_ context.Context, node *model.NodeExecution) (*model.NodeExecution, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.nodes[node.ID]; ok {
		return existing.Clone(), false, nil
	}
	stored := node.Clone()
	now := r.now()
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.nodes[node.ID] = stored
	return stored.Clone(), true, nil
}

func (r *MemoryNodeExecutionRepo) UpdateStatusGuarded(_ context.Context, id string, status model.Status, mutate Mutation, allowedFrom []model.Status) (*model.NodeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if !slices.Contains(allowedFrom, current.Status) {
		return nil, nil
	}
	next := current.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.Status = status
	next.UpdatedAt = r.now()
	r.nodes[id] = next
	return next.Clone(), nil
}

func (r *MemoryNodeExecutionRepo) UpdateUnconditional(_ context.Context, id string, mutate Mutation) (*model.NodeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	next := current.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.Status = current.Status
	next.UpdatedAt = r.now()
	r.nodes[id] = next
	return next.Clone(), nil
}

func (r *MemoryNodeExecutionRepo) ListStatusesByPlanExecution(_ context.Context, planExecutionID string) ([]model.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Status
	for _, n := range r.nodes {
		if n.PlanExecutionID == planExecutionID {
			out = append(out, n.Status)
		}
	}
	return out, nil
}

func (r *MemoryNodeExecutionRepo) ListActiveByPlanExecution(_ context.Context, planExecutionID string) ([]*model.NodeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.NodeExecution
	for _, n := range r.nodes {
		if n.PlanExecutionID == planExecutionID && !n.Status.IsFinal() {
			out = append(out, n.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (r *MemoryNodeExecutionRepo) FindActiveStartedBefore(_ context.Context, ts time.Time, limit int) ([]*model.NodeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.NodeExecution
	for _, n := range r.nodes {
		if !n.Status.IsFinal() && n.StartTs != nil && n.StartTs.Before(ts) {
			out = append(out, n.Clone())
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortByCreated(nodes []*model.NodeExecution) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
}

type MemoryConcurrentChildRepo struct {
	mu        sync.Mutex
	instances map[string]*model.ConcurrentChildInstance
}

func NewMemoryConcurrentChildRepo() *MemoryConcurrentChildRepo {
	return &MemoryConcurrentChildRepo{instances: make(map[string]*model.ConcurrentChildInstance)}
}

func cloneInstance(c *model.ConcurrentChildInstance) *model.ConcurrentChildInstance {
	out := *c
	out.ChildrenNodeExecutionIDs = slices.Clone(c.ChildrenNodeExecutionIDs)
	return &out
}

func (r *MemoryConcurrentChildRepo) CreateIfAbsent(_ context.Context, inst *model.ConcurrentChildInstance) (*model.ConcurrentChildInstance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.instances[inst.ParentID]; ok {
		return cloneInstance(existing), false, nil
	}
	stored := cloneInstance(inst)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.instances[inst.ParentID] = stored
	return cloneInstance(stored), true, nil
}

func (r *MemoryConcurrentChildRepo) Get(_ context.Context, parentID string) (*model.ConcurrentChildInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChildInstanceNotFound, parentID)
	}
	return cloneInstance(inst), nil
}

func (r *MemoryConcurrentChildRepo) Advance(_ context.Context, parentID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[parentID]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrChildInstanceNotFound, parentID)
	}
	if inst.Cursor >= len(inst.ChildrenNodeExecutionIDs) {
		return "", false, nil
	}
	next := inst.ChildrenNodeExecutionIDs[inst.Cursor]
	inst.Cursor++
	return next, true, nil
}

type MemoryPlanRepo struct {
	mu    sync.RWMutex
	nodes map[string]model.PlanNode
}

func NewMemoryPlanRepo() *MemoryPlanRepo {
	return &MemoryPlanRepo{nodes: make(map[string]model.PlanNode)}
}

func planNodeKey(planID, nodeID string) string { return planID + "/" + nodeID }

func (r *MemoryPlanRepo) SavePlan(_ context.Context, plan *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range plan.Nodes {
		n.StepParameters = slices.Clone(n.StepParameters)
		n.Children = slices.Clone(n.Children)
		r.nodes[planNodeKey(plan.UUID, n.UUID)] = n
	}
	return nil
}

func (r *MemoryPlanRepo) GetNode(_ context.Context, planID, nodeID string) (*model.PlanNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[planNodeKey(planID, nodeID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPlanNodeNotFound, planID, nodeID)
	}
	n.StepParameters = slices.Clone(n.StepParameters)
	n.Children = slices.Clone(n.Children)
	return &n, nil
}

type MemoryPlanExecutionRepo struct {
	mu    sync.Mutex
	execs map[string]model.PlanExecution
	now   func() time.Time
}

func NewMemoryPlanExecutionRepo() *MemoryPlanExecutionRepo {
	return &MemoryPlanExecutionRepo{execs: make(map[string]model.PlanExecution), now: time.Now}
}

func (r *MemoryPlanExecutionRepo) Create(_ context.Context, pe *model.PlanExecution) (*model.PlanExecution, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.execs[pe.ID]; ok {
		return &existing, false, nil
	}
	stored := *pe
	stored.UpdatedAt = r.now()
	r.execs[pe.ID] = stored
	return &stored, true, nil
}

func (r *MemoryPlanExecutionRepo) Get(_ context.Context, id string) (*model.PlanExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pe, ok := r.execs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanExecutionNotFound, id)
	}
	return &pe, nil
}

func (r *MemoryPlanExecutionRepo) UpdateStatus(_ context.Context, id string, status model.Status, allowedFrom []model.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pe, ok := r.execs[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrPlanExecutionNotFound, id)
	}
	if !slices.Contains(allowedFrom, pe.Status) {
		return false, nil
	}
	now := r.now()
	pe.Status = status
	pe.UpdatedAt = now
	if status.IsFinal() && pe.EndTs == nil {
		pe.EndTs = &now
	}
	r.execs[id] = pe
	return true, nil
}
