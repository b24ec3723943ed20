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

package processor

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/pkg/errors"
)

// ProgressHandler merges a progress report into the node and refreshes the
// plan's running status.
type ProgressHandler struct {
	*base
}

func (h *ProgressHandler) Handle(ctx context.Context, e *event.SdkResponseEvent) error {
	req := e.Progress
	progress := map[string]any{}
	if req.ProgressJSON != "" {
		if err := sonic.UnmarshalString(req.ProgressJSON, &progress); err != nil {
			return violation("decode progress of %s: %v", e.NodeExecutionID(), err)
		}
	}
	nodeID := e.NodeExecutionID()
	merge := repo.MergeProgress(progress)

	if req.Status == "" || req.Status == model.StatusNoOp {
		if _, err := h.Nodes.UpdateUnconditional(ctx, nodeID, merge); err != nil {
			return errors.Wrapf(err, "merge progress of %s", nodeID)
		}
	} else {
		if !req.Status.IsValid() {
			return violation("unknown status %q", req.Status)
		}
		if _, err := h.transition(ctx, nodeID, req.Status, merge, merge); err != nil {
			return errors.Wrapf(err, "progress transition of %s", nodeID)
		}
	}

	if h.PlanExecutions != nil {
		if err := h.PlanExecutions.CalculateAndUpdateRunningStatus(ctx, e.Ambiance.PlanExecutionID); err != nil {
			log.Warnw("refresh plan running status",
				"plan_execution_id", e.Ambiance.PlanExecutionID,
				"error", err,
			)
		}
	}
	return nil
}
