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
	"maps"
	"slices"
	"time"
)

type StepCategory string

const (
	StepCategoryPipeline  StepCategory = "PIPELINE"
	StepCategoryStage     StepCategory = "STAGE"
	StepCategoryStepGroup StepCategory = "STEP_GROUP"
	StepCategoryStrategy  StepCategory = "STRATEGY"
	StepCategoryFork      StepCategory = "FORK"
	StepCategoryStep      StepCategory = "STEP"
)

// StepType identifies the continuation that advances a node.
// StepTypeChain runs its plan node's children one after another.
const StepTypeChain = "Chain"

type StepType struct {
	Type     string       `json:"type"`
	Category StepCategory `json:"category"`
}

// Level is one hop on the path from the plan root to a node.
type Level struct {
	RuntimeID        string            `json:"runtimeId"`
	SetupID          string            `json:"setupId"`
	Identifier       string            `json:"identifier"`
	Group            string            `json:"group,omitempty"`
	StepType         StepType          `json:"stepType"`
	StrategyMetadata *StrategyMetadata `json:"strategyMetadata,omitempty"`
	StartTs          time.Time         `json:"startTs"`
}

type RunMode string

const (
	RunModeNormal                RunMode = "NORMAL"
	RunModePipelineRollback      RunMode = "PIPELINE_ROLLBACK"
	RunModePostExecutionRollback RunMode = "POST_EXECUTION_ROLLBACK"
)

type ExecutionMetadata struct {
	ExecutionMode   RunMode            `json:"executionMode"`
	TriggeredBy     string             `json:"triggeredBy,omitempty"`
	RollbackTargets []StrategyMetadata `json:"rollbackTargets,omitempty"`
}

const SetupAccountID = "accountId"

// Ambiance is the execution context of a node. Values are never mutated in
// place: every helper that changes the path returns a copy with its own Levels.
type Ambiance struct {
	PlanExecutionID   string            `json:"planExecutionId"`
	PlanID            string            `json:"planId"`
	SetupAbstractions map[string]string `json:"setupAbstractions,omitempty"`
	Levels            []Level           `json:"levels"`
	Metadata          ExecutionMetadata `json:"metadata"`
}

// Clone returns a copy holding the first n levels.
func (a Ambiance) Clone(n int) Ambiance {
	if n < 0 {
		n = 0
	}
	if n > len(a.Levels) {
		n = len(a.Levels)
	}
	out := a
	out.Levels = slices.Clone(a.Levels[:n:n])
	if out.Levels == nil {
		out.Levels = []Level{}
	}
	out.SetupAbstractions = maps.Clone(a.SetupAbstractions)
	out.Metadata.RollbackTargets = slices.Clone(a.Metadata.RollbackTargets)
	return out
}

// CloneForChild returns a copy extended by level.
func (a Ambiance) CloneForChild(level Level) Ambiance {
	out := a.Clone(len(a.Levels))
	out.Levels = append(out.Levels, level)
	return out
}

// CloneForFinish returns the parent's ambiance.
func (a Ambiance) CloneForFinish() Ambiance {
	return a.Clone(len(a.Levels) - 1)
}

func (a Ambiance) CurrentLevel() (Level, bool) {
	if len(a.Levels) == 0 {
		return Level{}, false
	}
	return a.Levels[len(a.Levels)-1], true
}

func (a Ambiance) CurrentRuntimeID() string {
	l, _ := a.CurrentLevel()
	return l.RuntimeID
}

// ParentRuntimeID is empty for the root node.
func (a Ambiance) ParentRuntimeID() string {
	if len(a.Levels) < 2 {
		return ""
	}
	return a.Levels[len(a.Levels)-2].RuntimeID
}

// StrategyLevel returns the nearest level, walking up, that carries strategy metadata.
func (a Ambiance) StrategyLevel() (Level, bool) {
	for i := len(a.Levels) - 1; i >= 0; i-- {
		if a.Levels[i].StrategyMetadata != nil {
			return a.Levels[i], true
		}
	}
	return Level{}, false
}

func (a Ambiance) AccountID() string {
	return a.SetupAbstractions[SetupAccountID]
}

func (a Ambiance) IsRollbackMode() bool {
	return a.Metadata.ExecutionMode == RunModePipelineRollback ||
		a.Metadata.ExecutionMode == RunModePostExecutionRollback
}
