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

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/pkg/errors"
)

// AddExecutableResponseHandler records what a node will do next and, unless
// the status is NO_OP, moves the node to that status. The response is kept
// even when another writer wins the status race.
type AddExecutableResponseHandler struct {
	*base
}

func (h *AddExecutableResponseHandler) Handle(ctx context.Context, e *event.SdkResponseEvent) error {
	req := e.AddExecutableResponse
	if err := req.Response.Validate(); err != nil {
		return violation("%v", err)
	}
	nodeID := e.NodeExecutionID()
	appendResp := repo.AppendResponse(req.Response)

	if req.Status == "" || req.Status == model.StatusNoOp {
		_, err := h.Nodes.UpdateUnconditional(ctx, nodeID, appendResp)
		return errors.Wrap(err, "append executable response")
	}
	if !req.Status.IsValid() {
		return violation("unknown status %q", req.Status)
	}
	_, err := h.transition(ctx, nodeID, req.Status, appendResp, appendResp)
	return errors.Wrapf(err, "add executable response to %s", nodeID)
}

// StepResponseHandler applies a final outcome reported by a step executor.
type StepResponseHandler struct {
	*base
}

func (h *StepResponseHandler) Handle(ctx context.Context, e *event.SdkResponseEvent) error {
	req := e.StepResponse
	if !req.Status.IsFinal() {
		return violation("step response status %q is not final", req.Status)
	}
	var record repo.Mutation
	if req.FailureInfo != nil {
		record = repo.Finish(h.now(), req.FailureInfo)
	}
	_, err := h.transition(ctx, e.NodeExecutionID(), req.Status, record, nil)
	return errors.Wrapf(err, "handle step response of %s", e.NodeExecutionID())
}
