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
)

// Mutations runs each non-nil mutation in order.
func Mutations(ms ...Mutation) Mutation {
	return func(n *model.NodeExecution) {
		for _, m := range ms {
			if m != nil {
				m(n)
			}
		}
	}
}

// AppendResponse adds r with set semantics.
func AppendResponse(r model.ExecutableResponse) Mutation {
	return func(n *model.NodeExecution) {
		n.AddExecutableResponse(r)
	}
}

// MergeProgress overlays progress keys onto the stored progress.
func MergeProgress(progress map[string]any) Mutation {
	return func(n *model.NodeExecution) {
		if len(progress) == 0 {
			return
		}
		if n.Progress == nil {
			n.Progress = make(map[string]any, len(progress))
		}
		for k, v := range progress {
			n.Progress[k] = v
		}
	}
}

// AppendInterrupt records i unless an interrupt with the same id is present.
func AppendInterrupt(i model.InterruptEffect) Mutation {
	return func(n *model.NodeExecution) {
		for _, existing := range n.InterruptHistories {
			if existing.InterruptID == i.InterruptID {
				return
			}
		}
		n.InterruptHistories = append(n.InterruptHistories, i)
	}
}

// SetStartTs stamps StartTs once.
func SetStartTs(ts time.Time) Mutation {
	return func(n *model.NodeExecution) {
		if n.StartTs == nil {
			n.StartTs = &ts
		}
	}
}

// Finish stamps EndTs and, when failure is non-nil, records it.
func Finish(ts time.Time, failure *model.FailureInfo) Mutation {
	return func(n *model.NodeExecution) {
		if n.EndTs == nil {
			n.EndTs = &ts
		}
		if failure != nil {
			n.FailureInfo = failure
		}
	}
}
