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
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewGormRepositories builds MySQL backed stores over db.
func NewGormRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Nodes:          NewNodeExecutionRepo(db),
		Children:       NewConcurrentChildRepo(db),
		Plans:          NewPlanRepo(db),
		PlanExecutions: NewPlanExecutionRepo(db),
	}
}

// AutoMigrate creates or updates the orchestrator tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func statusStrings(ss []model.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// NodeExecutionRepo is the MySQL node store. Guarded writes lock the row and
// re-check the status inside one transaction.
type NodeExecutionRepo struct {
	db *gorm.DB
}

func NewNodeExecutionRepo(db *gorm.DB) *NodeExecutionRepo {
	return &NodeExecutionRepo{db: db}
}

func (r *NodeExecutionRepo) Get(ctx context.Context, id string) (*model.NodeExecution, error) {
	var rec nodeExecutionRecord
	err := database.WriteDB(r.db.WithContext(ctx)).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node execution %s: %w", id, err)
	}
	return rec.toModel(), nil
}

func (r *NodeExecutionRepo) Create(ctx context.Context, node *model.NodeExecution) (*model.NodeExecution, bool, error) {
	now := time.Now().UTC()
	stored := node.Clone()
	stored.CreatedAt, stored.UpdatedAt = now, now

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(newNodeExecutionRecord(stored))
	if res.Error != nil {
		return nil, false, fmt.Errorf("create node execution %s: %w", node.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := r.Get(ctx, node.ID)
		return existing, false, err
	}
	return stored, true, nil
}

func (r *NodeExecutionRepo) UpdateStatusGuarded(ctx context.Context, id string, status model.Status, mutate Mutation, allowedFrom []model.Status) (*model.NodeExecution, error) {
	var out *model.NodeExecution
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec nodeExecutionRecord
		err := forUpdate(tx).Where("id = ?", id).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
		if err != nil {
			return err
		}
		node := rec.toModel()
		if !containsStatus(allowedFrom, node.Status) {
			return nil
		}
		if mutate != nil {
			mutate(node)
		}
		node.Status = status
		node.UpdatedAt = time.Now().UTC()

		res := tx.Model(&nodeExecutionRecord{}).
			Where("id = ? AND status IN ?", id, statusStrings(allowedFrom)).
			Select("*").Omit("id", "created_at").
			Updates(newNodeExecutionRecord(node))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			out = node
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("guarded update %s -> %s: %w", id, status, err)
	}
	return out, nil
}

func (r *NodeExecutionRepo) UpdateUnconditional(ctx context.Context, id string, mutate Mutation) (*model.NodeExecution, error) {
	var out *model.NodeExecution
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec nodeExecutionRecord
		err := forUpdate(tx).Where("id = ?", id).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
		if err != nil {
			return err
		}
		node := rec.toModel()
		if mutate != nil {
			mutate(node)
		}
		node.Status = model.Status(rec.Status)
		node.UpdatedAt = time.Now().UTC()
		out = node
		return tx.Model(&nodeExecutionRecord{}).Where("id = ?", id).
			Select("*").Omit("id", "created_at", "status").
			Updates(newNodeExecutionRecord(node)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update node execution %s: %w", id, err)
	}
	return out, nil
}

func (r *NodeExecutionRepo) ListStatusesByPlanExecution(ctx context.Context, planExecutionID string) ([]model.Status, error) {
	var raw []string
	err := database.ReadDB(r.db.WithContext(ctx)).Model(&nodeExecutionRecord{}).
		Where("plan_execution_id = ?", planExecutionID).
		Pluck("status", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("list statuses of %s: %w", planExecutionID, err)
	}
	out := make([]model.Status, len(raw))
	for i, s := range raw {
		out[i] = model.Status(s)
	}
	return out, nil
}

func (r *NodeExecutionRepo) ListActiveByPlanExecution(ctx context.Context, planExecutionID string) ([]*model.NodeExecution, error) {
	var recs []nodeExecutionRecord
	err := database.WriteDB(r.db.WithContext(ctx)).
		Where("plan_execution_id = ? AND status IN ?", planExecutionID, statusStrings(model.NonFinalStatuses())).
		Order("created_at, id").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list active nodes of %s: %w", planExecutionID, err)
	}
	return toModels(recs), nil
}

func (r *NodeExecutionRepo) FindActiveStartedBefore(ctx context.Context, ts time.Time, limit int) ([]*model.NodeExecution, error) {
	q := database.ReadDB(r.db.WithContext(ctx)).
		Where("status IN ? AND start_ts < ?", statusStrings(model.NonFinalStatuses()), ts).
		Order("start_ts, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []nodeExecutionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("find stale nodes: %w", err)
	}
	return toModels(recs), nil
}

func toModels(recs []nodeExecutionRecord) []*model.NodeExecution {
	out := make([]*model.NodeExecution, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	return out
}

func containsStatus(set []model.Status, s model.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type ConcurrentChildRepo struct {
	db *gorm.DB
}

func NewConcurrentChildRepo(db *gorm.DB) *ConcurrentChildRepo {
	return &ConcurrentChildRepo{db: db}
}

func (r *ConcurrentChildRepo) CreateIfAbsent(ctx context.Context, inst *model.ConcurrentChildInstance) (*model.ConcurrentChildInstance, bool, error) {
	rec := &concurrentChildRecord{
		ParentID:       inst.ParentID,
		Children:       inst.ChildrenNodeExecutionIDs,
		Cursor:         inst.Cursor,
		MaxConcurrency: inst.MaxConcurrency,
		CreatedAt:      time.Now().UTC(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create child instance %s: %w", inst.ParentID, res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := r.Get(ctx, inst.ParentID)
		return existing, false, err
	}
	return rec.toModel(), true, nil
}

func (r *ConcurrentChildRepo) Get(ctx context.Context, parentID string) (*model.ConcurrentChildInstance, error) {
	var rec concurrentChildRecord
	err := database.WriteDB(r.db.WithContext(ctx)).Where("parent_id = ?", parentID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChildInstanceNotFound, parentID)
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *ConcurrentChildRepo) Advance(ctx context.Context, parentID string) (string, bool, error) {
	var next string
	var ok bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec concurrentChildRecord
		err := forUpdate(tx).Where("parent_id = ?", parentID).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrChildInstanceNotFound, parentID)
		}
		if err != nil {
			return err
		}
		if rec.Cursor >= len(rec.Children) {
			return nil
		}
		next, ok = rec.Children[rec.Cursor], true
		return tx.Model(&concurrentChildRecord{}).Where("parent_id = ?", parentID).
			Update("cursor_pos", rec.Cursor+1).Error
	})
	if err != nil {
		return "", false, fmt.Errorf("advance child cursor of %s: %w", parentID, err)
	}
	return next, ok, nil
}

type PlanRepo struct {
	db *gorm.DB
}

func NewPlanRepo(db *gorm.DB) *PlanRepo {
	return &PlanRepo{db: db}
}

func (r *PlanRepo) SavePlan(ctx context.Context, plan *model.Plan) error {
	if len(plan.Nodes) == 0 {
		return nil
	}
	recs := make([]planNodeRecord, len(plan.Nodes))
	for i, n := range plan.Nodes {
		recs[i] = planNodeRecord{
			PlanID:         plan.UUID,
			UUID:           n.UUID,
			Identifier:     n.Identifier,
			Name:           n.Name,
			Group:          n.Group,
			StepType:       datatypes.NewJSONType(n.StepType),
			StepParameters: n.StepParameters,
			SkipCondition:  n.SkipCondition,
			Children:       n.Children,
			Iterations:     n.Iterations,
			MaxConcurrency: n.MaxConcurrency,
		}
	}
	// plans are immutable once stored
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(recs, 100).Error
}

func (r *PlanRepo) GetNode(ctx context.Context, planID, nodeID string) (*model.PlanNode, error) {
	var rec planNodeRecord
	err := database.ReadDB(r.db.WithContext(ctx)).Where("plan_id = ? AND uuid = ?", planID, nodeID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrPlanNodeNotFound, planID, nodeID)
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

type PlanExecutionRepo struct {
	db *gorm.DB
}

func NewPlanExecutionRepo(db *gorm.DB) *PlanExecutionRepo {
	return &PlanExecutionRepo{db: db}
}

func (r *PlanExecutionRepo) Create(ctx context.Context, pe *model.PlanExecution) (*model.PlanExecution, bool, error) {
	rec := &planExecutionRecord{
		ID:        pe.ID,
		PlanID:    pe.PlanID,
		Status:    string(pe.Status),
		Metadata:  datatypes.NewJSONType(pe.Metadata),
		StartTs:   pe.StartTs,
		EndTs:     pe.EndTs,
		UpdatedAt: time.Now().UTC(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create plan execution %s: %w", pe.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := r.Get(ctx, pe.ID)
		return existing, false, err
	}
	return rec.toModel(), true, nil
}

func (r *PlanExecutionRepo) Get(ctx context.Context, id string) (*model.PlanExecution, error) {
	var rec planExecutionRecord
	err := database.WriteDB(r.db.WithContext(ctx)).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *PlanExecutionRepo) UpdateStatus(ctx context.Context, id string, status model.Status, allowedFrom []model.Status) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{"status": string(status), "updated_at": now}
	q := r.db.WithContext(ctx).Model(&planExecutionRecord{}).
		Where("id = ? AND status IN ?", id, statusStrings(allowedFrom))
	if status.IsFinal() {
		updates["end_ts"] = gorm.Expr("COALESCE(end_ts, ?)", now)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update plan execution %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
