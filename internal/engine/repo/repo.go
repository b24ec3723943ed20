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
	"errors"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
)

var (
	ErrNodeNotFound          = errors.New("node execution not found")
	ErrPlanNodeNotFound      = errors.New("plan node not found")
	ErrPlanExecutionNotFound = errors.New("plan execution not found")
	ErrChildInstanceNotFound = errors.New("concurrent child instance not found")
)

// Mutation edits a node inside a store write. It must not block or perform I/O.
type Mutation func(n *model.NodeExecution)

// INodeExecutionRepository is the node store. Every method is a single atomic
// write or read; callers never read-modify-write across calls.
type INodeExecutionRepository interface {
	Get(ctx context.Context, id string) (*model.NodeExecution, error)
	// Create inserts node unless a node with the same id exists, in which case
	// the stored node is returned with created=false.
	Create(ctx context.Context, node *model.NodeExecution) (stored *model.NodeExecution, created bool, err error)
	// UpdateStatusGuarded applies mutate and sets status iff the persisted
	// status is in allowedFrom. It returns (nil, nil) without writing otherwise.
	UpdateStatusGuarded(ctx context.Context, id string, status model.Status, mutate Mutation, allowedFrom []model.Status) (*model.NodeExecution, error)
	// UpdateUnconditional applies mutate without changing status.
	UpdateUnconditional(ctx context.Context, id string, mutate Mutation) (*model.NodeExecution, error)
	ListStatusesByPlanExecution(ctx context.Context, planExecutionID string) ([]model.Status, error)
	ListActiveByPlanExecution(ctx context.Context, planExecutionID string) ([]*model.NodeExecution, error)
	// FindActiveStartedBefore returns non-final nodes whose StartTs precedes ts.
	FindActiveStartedBefore(ctx context.Context, ts time.Time, limit int) ([]*model.NodeExecution, error)
}

// IConcurrentChildRepository stores fan-out admission windows.
type IConcurrentChildRepository interface {
	// CreateIfAbsent stores inst unless one exists for the same parent, in which
	// case the stored instance is returned with created=false.
	CreateIfAbsent(ctx context.Context, inst *model.ConcurrentChildInstance) (stored *model.ConcurrentChildInstance, created bool, err error)
	Get(ctx context.Context, parentID string) (*model.ConcurrentChildInstance, error)
	// Advance moves the cursor forward by one and returns the child it admitted.
	// ok is false when every child was already admitted.
	Advance(ctx context.Context, parentID string) (childID string, ok bool, err error)
}

type IPlanRepository interface {
	SavePlan(ctx context.Context, plan *model.Plan) error
	GetNode(ctx context.Context, planID, nodeID string) (*model.PlanNode, error)
}

type IPlanExecutionRepository interface {
	Create(ctx context.Context, pe *model.PlanExecution) (stored *model.PlanExecution, created bool, err error)
	Get(ctx context.Context, id string) (*model.PlanExecution, error)
	// UpdateStatus sets status iff the persisted status is in allowedFrom and
	// reports whether it wrote. Final statuses also stamp EndTs.
	UpdateStatus(ctx context.Context, id string, status model.Status, allowedFrom []model.Status) (bool, error)
}

// Repositories groups the stores the engine is wired with.
type Repositories struct {
	Nodes          INodeExecutionRepository
	Children       IConcurrentChildRepository
	Plans          IPlanRepository
	PlanExecutions IPlanExecutionRepository
}
