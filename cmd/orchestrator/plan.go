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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"sigs.k8s.io/yaml"
)

// planNodeFile is a plan node as written by hand. Step parameters are inline
// objects rather than encoded bytes.
type planNodeFile struct {
	UUID           string          `json:"uuid"`
	Identifier     string          `json:"identifier"`
	Name           string          `json:"name,omitempty"`
	Group          string          `json:"group,omitempty"`
	StepType       model.StepType  `json:"stepType"`
	StepParameters json.RawMessage `json:"stepParameters,omitempty"`
	SkipCondition  string          `json:"skipCondition,omitempty"`
	Children       []string        `json:"children,omitempty"`
	Iterations     int             `json:"iterations,omitempty"`
	MaxConcurrency int             `json:"maxConcurrency,omitempty"`
}

type planFileDoc struct {
	UUID       string         `json:"uuid"`
	RootNodeID string         `json:"rootNodeId"`
	Nodes      []planNodeFile `json:"nodes"`
}

func loadPlan(path string) (*model.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return parsePlan(raw)
}

func parsePlan(raw []byte) (*model.Plan, error) {
	var doc planFileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	plan := &model.Plan{UUID: doc.UUID, RootNodeID: doc.RootNodeID, Nodes: make([]model.PlanNode, 0, len(doc.Nodes))}
	for _, n := range doc.Nodes {
		plan.Nodes = append(plan.Nodes, model.PlanNode{
			UUID:           n.UUID,
			Identifier:     n.Identifier,
			Name:           n.Name,
			Group:          n.Group,
			StepType:       n.StepType,
			StepParameters: []byte(n.StepParameters),
			SkipCondition:  n.SkipCondition,
			Children:       n.Children,
			Iterations:     n.Iterations,
			MaxConcurrency: n.MaxConcurrency,
		})
	}
	return plan, nil
}
