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
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/pkg/errors"
)

// ResumeHandler hands the collected child responses back to the engine.
type ResumeHandler struct {
	*base
}

func (h *ResumeHandler) Handle(ctx context.Context, e *event.SdkResponseEvent) error {
	req := e.Resume
	if req.Response != nil {
		if err := req.Response.Validate(); err != nil {
			return violation("%v", err)
		}
		if _, err := h.Nodes.UpdateUnconditional(ctx, e.NodeExecutionID(), repo.AppendResponse(*req.Response)); err != nil {
			return errors.Wrap(err, "append resume response")
		}
	}
	return h.Engine.ResumeNodeExecution(ctx, e.Ambiance, req.Responses, req.AsyncError)
}
