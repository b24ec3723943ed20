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
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"gorm.io/datatypes"
)

type nodeExecutionRecord struct {
	ID                     string                                        `gorm:"column:id;primaryKey;size:64"`
	PlanExecutionID        string                                        `gorm:"column:plan_execution_id;size:64;index:idx_node_plan_status,priority:1"`
	NodeID                 string                                        `gorm:"column:node_id;size:64"`
	Identifier             string                                        `gorm:"column:identifier;size:128"`
	Name                   string                                        `gorm:"column:name;size:255"`
	StepType               datatypes.JSONType[model.StepType]            `gorm:"column:step_type"`
	Status                 string                                        `gorm:"column:status;size:32;index:idx_node_plan_status,priority:2;index:idx_node_status_start,priority:1"`
	Mode                   string                                        `gorm:"column:mode;size:32"`
	Ambiance               datatypes.JSONType[model.Ambiance]            `gorm:"column:ambiance"`
	ExecutableResponses    datatypes.JSONSlice[model.ExecutableResponse] `gorm:"column:executable_responses"`
	ResolvedStepParameters []byte                                        `gorm:"column:resolved_step_parameters;type:longblob"`
	InterruptHistories     datatypes.JSONSlice[model.InterruptEffect]    `gorm:"column:interrupt_histories"`
	Progress               datatypes.JSONMap                             `gorm:"column:progress"`
	FailureInfo            datatypes.JSONType[*model.FailureInfo]        `gorm:"column:failure_info"`
	StrategyMetadata       datatypes.JSONType[*model.StrategyMetadata]   `gorm:"column:strategy_metadata"`
	StartTs                *time.Time                                    `gorm:"column:start_ts;index:idx_node_status_start,priority:2"`
	EndTs                  *time.Time                                    `gorm:"column:end_ts"`
	CreatedAt              time.Time                                     `gorm:"column:created_at"`
	UpdatedAt              time.Time                                     `gorm:"column:updated_at"`
}

func (nodeExecutionRecord) TableName() string { return "orc_node_execution" }

func newNodeExecutionRecord(n *model.NodeExecution) *nodeExecutionRecord {
	return &nodeExecutionRecord{
		ID:                     n.ID,
		PlanExecutionID:        n.PlanExecutionID,
		NodeID:                 n.NodeID,
		Identifier:             n.Identifier,
		Name:                   n.Name,
		StepType:               datatypes.NewJSONType(n.StepType),
		Status:                 string(n.Status),
		Mode:                   string(n.Mode),
		Ambiance:               datatypes.NewJSONType(n.Ambiance),
		ExecutableResponses:    datatypes.JSONSlice[model.ExecutableResponse](n.ExecutableResponses),
		ResolvedStepParameters: n.ResolvedStepParameters,
		InterruptHistories:     datatypes.JSONSlice[model.InterruptEffect](n.InterruptHistories),
		Progress:               datatypes.JSONMap(n.Progress),
		FailureInfo:            datatypes.NewJSONType(n.FailureInfo),
		StrategyMetadata:       datatypes.NewJSONType(n.StrategyMetadata),
		StartTs:                n.StartTs,
		EndTs:                  n.EndTs,
		CreatedAt:              n.CreatedAt,
		UpdatedAt:              n.UpdatedAt,
	}
}

func (r *nodeExecutionRecord) toModel() *model.NodeExecution {
	return &model.NodeExecution{
		ID:                     r.ID,
		Ambiance:               r.Ambiance.Data(),
		PlanExecutionID:        r.PlanExecutionID,
		NodeID:                 r.NodeID,
		Identifier:             r.Identifier,
		Name:                   r.Name,
		StepType:               r.StepType.Data(),
		Status:                 model.Status(r.Status),
		Mode:                   model.ExecutionMode(r.Mode),
		ExecutableResponses:    []model.ExecutableResponse(r.ExecutableResponses),
		ResolvedStepParameters: r.ResolvedStepParameters,
		InterruptHistories:     []model.InterruptEffect(r.InterruptHistories),
		Progress:               map[string]any(r.Progress),
		FailureInfo:            r.FailureInfo.Data(),
		StrategyMetadata:       r.StrategyMetadata.Data(),
		StartTs:                r.StartTs,
		EndTs:                  r.EndTs,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

type concurrentChildRecord struct {
	ParentID       string                      `gorm:"column:parent_id;primaryKey;size:64"`
	Children       datatypes.JSONSlice[string] `gorm:"column:children"`
	Cursor         int                         `gorm:"column:cursor_pos"`
	MaxConcurrency int                         `gorm:"column:max_concurrency"`
	CreatedAt      time.Time                   `gorm:"column:created_at"`
}

func (concurrentChildRecord) TableName() string { return "orc_concurrent_child" }

func (r *concurrentChildRecord) toModel() *model.ConcurrentChildInstance {
	return &model.ConcurrentChildInstance{
		ParentID:                 r.ParentID,
		ChildrenNodeExecutionIDs: []string(r.Children),
		Cursor:                   r.Cursor,
		MaxConcurrency:           r.MaxConcurrency,
		CreatedAt:                r.CreatedAt,
	}
}

type planNodeRecord struct {
	PlanID         string                             `gorm:"column:plan_id;primaryKey;size:64"`
	UUID           string                             `gorm:"column:uuid;primaryKey;size:64"`
	Identifier     string                             `gorm:"column:identifier;size:128"`
	Name           string                             `gorm:"column:name;size:255"`
	Group          string                             `gorm:"column:group_name;size:64"`
	StepType       datatypes.JSONType[model.StepType] `gorm:"column:step_type"`
	StepParameters []byte                             `gorm:"column:step_parameters;type:longblob"`
	SkipCondition  string                             `gorm:"column:skip_condition;type:text"`
	Children       datatypes.JSONSlice[string]        `gorm:"column:children"`
	Iterations     int                                `gorm:"column:iterations"`
	MaxConcurrency int                                `gorm:"column:max_concurrency"`
}

func (planNodeRecord) TableName() string { return "orc_plan_node" }

func (r *planNodeRecord) toModel() *model.PlanNode {
	return &model.PlanNode{
		UUID:           r.UUID,
		Identifier:     r.Identifier,
		Name:           r.Name,
		Group:          r.Group,
		StepType:       r.StepType.Data(),
		StepParameters: r.StepParameters,
		SkipCondition:  r.SkipCondition,
		Children:       []string(r.Children),
		Iterations:     r.Iterations,
		MaxConcurrency: r.MaxConcurrency,
	}
}

type planExecutionRecord struct {
	ID        string                                      `gorm:"column:id;primaryKey;size:64"`
	PlanID    string                                      `gorm:"column:plan_id;size:64;index"`
	Status    string                                      `gorm:"column:status;size:32"`
	Metadata  datatypes.JSONType[model.ExecutionMetadata] `gorm:"column:metadata"`
	StartTs   time.Time                                   `gorm:"column:start_ts"`
	EndTs     *time.Time                                  `gorm:"column:end_ts"`
	UpdatedAt time.Time                                   `gorm:"column:updated_at"`
}

func (planExecutionRecord) TableName() string { return "orc_plan_execution" }

func (r *planExecutionRecord) toModel() *model.PlanExecution {
	return &model.PlanExecution{
		ID:        r.ID,
		PlanID:    r.PlanID,
		Status:    model.Status(r.Status),
		Metadata:  r.Metadata.Data(),
		StartTs:   r.StartTs,
		EndTs:     r.EndTs,
		UpdatedAt: r.UpdatedAt,
	}
}

// Models lists the tables AutoMigrate creates.
func Models() []any {
	return []any{
		&nodeExecutionRecord{},
		&concurrentChildRecord{},
		&planNodeRecord{},
		&planExecutionRecord{},
	}
}
