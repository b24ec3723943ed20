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

import "maps"

// StrategyMetadata is the loop or matrix context of one spawned child.
type StrategyMetadata struct {
	CurrentIteration int               `json:"currentIteration"`
	TotalIterations  int               `json:"totalIterations"`
	MatrixValues     map[string]string `json:"matrixValues,omitempty"`
	Identifier       string            `json:"identifier,omitempty"`
}

func (s *StrategyMetadata) Equal(o *StrategyMetadata) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.CurrentIteration == o.CurrentIteration &&
		s.TotalIterations == o.TotalIterations &&
		s.Identifier == o.Identifier &&
		maps.Equal(s.MatrixValues, o.MatrixValues)
}

func (s *StrategyMetadata) Clone() *StrategyMetadata {
	if s == nil {
		return nil
	}
	out := *s
	out.MatrixValues = maps.Clone(s.MatrixValues)
	return &out
}
