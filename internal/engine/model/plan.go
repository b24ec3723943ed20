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

import "time"

// PlanNode is the immutable definition a NodeExecution is created from.
type PlanNode struct {
	UUID           string   `json:"uuid"`
	Identifier     string   `json:"identifier"`
	Name           string   `json:"name,omitempty"`
	Group          string   `json:"group,omitempty"`
	StepType       StepType `json:"stepType"`
	StepParameters []byte   `json:"stepParameters,omitempty"`
	// SkipCondition is an expr expression; true skips the node at start.
	SkipCondition string `json:"skipCondition,omitempty"`
	// Children lists the plan nodes a container node runs. Iterations > 0
	// repeats the single child as a strategy.
	Children       []string `json:"children,omitempty"`
	Iterations     int      `json:"iterations,omitempty"`
	MaxConcurrency int      `json:"maxConcurrency,omitempty"`
}

type Plan struct {
	UUID       string     `json:"uuid"`
	RootNodeID string     `json:"rootNodeId"`
	Nodes      []PlanNode `json:"nodes"`
}

func (p *Plan) Node(uuid string) (PlanNode, bool) {
	for _, n := range p.Nodes {
		if n.UUID == uuid {
			return n, true
		}
	}
	return PlanNode{}, false
}

type PlanExecution struct {
	ID        string            `json:"id"`
	PlanID    string            `json:"planId"`
	Status    Status            `json:"status"`
	Metadata  ExecutionMetadata `json:"metadata"`
	StartTs   time.Time         `json:"startTs"`
	EndTs     *time.Time        `json:"endTs,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
