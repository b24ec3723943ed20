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
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/go-arcade/orchestrator/internal/engine/model"
)

// shouldSkip evaluates a plan node's skip condition against the execution
// the node runs in. An empty condition never skips.
func shouldSkip(condition string, node *model.NodeExecution) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return false, nil
	}
	env := skipEnv(node)
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile skip condition %q: %w", condition, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate skip condition %q: %w", condition, err)
	}
	return out.(bool), nil
}

func skipEnv(n *model.NodeExecution) map[string]any {
	strategy := map[string]any{}
	if s := n.StrategyMetadata; s != nil {
		matrix := make(map[string]any, len(s.MatrixValues))
		for k, v := range s.MatrixValues {
			matrix[k] = v
		}
		strategy = map[string]any{
			"iteration":  s.CurrentIteration,
			"total":      s.TotalIterations,
			"identifier": s.Identifier,
			"matrix":     matrix,
		}
	}
	setup := make(map[string]any, len(n.Ambiance.SetupAbstractions))
	for k, v := range n.Ambiance.SetupAbstractions {
		setup[k] = v
	}
	return map[string]any{
		"strategy": strategy,
		"setup":    setup,
		"plan": map[string]any{
			"executionId": n.PlanExecutionID,
			"planId":      n.Ambiance.PlanID,
			"mode":        string(n.Ambiance.Metadata.ExecutionMode),
		},
		"identifier": n.Identifier,
	}
}
