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
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/pkg/errors"
)

// SpawnChildHandler starts the single child of a CHILD or CHILD_CHAIN
// response and parks the parent on it.
type SpawnChildHandler struct {
	*base
}

func (h *SpawnChildHandler) Handle(ctx context.Context, e *event.SdkResponseEvent) error {
	r := e.SpawnChild.Response
	var (
		childNodeID string
		strategy    *model.StrategyMetadata
	)
	switch r.Kind {
	case model.ModeChild:
		if r.Child == nil {
			return violation("child response without payload")
		}
		childNodeID, strategy = r.Child.ChildNodeID, r.Child.StrategyMetadata
	case model.ModeChildChain:
		if r.ChildChain == nil {
			return violation("child chain response without payload")
		}
		childNodeID, strategy = r.ChildChain.NextChildID, r.ChildChain.StrategyMetadata
	default:
		return violation("spawn child with %s response", r.Kind)
	}
	if childNodeID == "" {
		return violation("spawn child without child node id")
	}

	parentID := e.NodeExecutionID()
	parent, err := h.Nodes.Get(ctx, parentID)
	if err != nil {
		return errors.Wrapf(err, "load parent %s", parentID)
	}
	if interrupt, halted := parent.HaltingInterrupt(); halted {
		return h.abortHalted(ctx, parent, interrupt)
	}

	// recorded first so a resume racing the child sees the chain position
	if _, err := h.Nodes.UpdateUnconditional(ctx, parentID, repo.AppendResponse(r)); err != nil {
		return errors.Wrapf(err, "record spawn on %s", parentID)
	}
	childID := id.Derive(parentID, e.ID, childNodeID)
	if _, err := h.Waits.WaitForAll(ctx, []string{childID},
		waitnotify.Callback{Kind: waitnotify.CallbackResumeParent, ParentID: parentID},
		waitnotify.WithWaitID(id.Derive("resume", parentID, e.ID)),
	); err != nil {
		return errors.Wrapf(err, "register wait of %s on %s", parentID, childID)
	}
	h.Metrics.WaitRegistered(string(waitnotify.CallbackResumeParent))

	if err := h.Engine.InitiateNode(ctx, e.Ambiance, childNodeID, childID, strategy, event.InitiateCreateAndStart); err != nil {
		return errors.Wrapf(err, "initiate child %s", childID)
	}
	return nil
}

// SpawnChildrenHandler fans a CHILDREN response out under the concurrency
// ceiling. Children beyond the admitted window are created QUEUED and started
// one by one as running siblings finish.
type SpawnChildrenHandler struct {
	*base
}

func (h *SpawnChildrenHandler) Handle(ctx context.Context, e *event.SdkResponseEvent) error {
	r := e.SpawnChildren.Response
	if r.Kind != model.ModeChildren || r.Children == nil {
		return violation("spawn children with %s response", r.Kind)
	}

	parentID := e.NodeExecutionID()
	parent, err := h.Nodes.Get(ctx, parentID)
	if err != nil {
		return errors.Wrapf(err, "load parent %s", parentID)
	}
	if interrupt, halted := parent.HaltingInterrupt(); halted {
		return h.abortHalted(ctx, parent, interrupt)
	}

	specs := r.Children.Children
	if e.Ambiance.IsRollbackMode() && len(e.Ambiance.Metadata.RollbackTargets) > 0 {
		specs = rollbackChildren(specs, e.Ambiance.Metadata.RollbackTargets)
	}
	if _, err := h.Nodes.UpdateUnconditional(ctx, parentID, repo.AppendResponse(r)); err != nil {
		return errors.Wrapf(err, "record spawn on %s", parentID)
	}
	if len(specs) == 0 {
		log.Infow("fan-out has no children, resuming parent", "node_execution_id", parentID)
		return h.Engine.ResumeNodeExecution(ctx, e.Ambiance, map[string]model.ResponseData{}, false)
	}

	ids := make([]string, len(specs))
	byID := make(map[string]model.ChildSpec, len(specs))
	for i, spec := range specs {
		ids[i] = id.DeriveIndexed(i, parentID, e.ID)
		byID[ids[i]] = spec
	}

	limit := h.Admission.MaxConcurrency(e.Ambiance, r.Children.MaxConcurrency)
	adm, err := h.Admission.Admit(ctx, parentID, ids, limit)
	if err != nil {
		return err
	}
	if !adm.Existing {
		h.Metrics.ChildrenAdmitted(len(adm.ToStart), len(adm.ToQueue))
	}

	// a slot callback per child keeps the window full until the queue drains
	if len(adm.ToQueue) > 0 {
		for _, childID := range ids {
			if _, err := h.Waits.WaitForAll(ctx, []string{childID},
				waitnotify.Callback{Kind: waitnotify.CallbackMaxConcurrency, ParentID: parentID, ChildID: childID},
				waitnotify.WithWaitID(id.Derive("slot", parentID, childID)),
			); err != nil {
				return errors.Wrapf(err, "register slot wait of %s", childID)
			}
			h.Metrics.WaitRegistered(string(waitnotify.CallbackMaxConcurrency))
		}
	}
	if _, err := h.Waits.WaitForAll(ctx, ids,
		waitnotify.Callback{Kind: waitnotify.CallbackResumeParent, ParentID: parentID},
		waitnotify.WithWaitID(id.Derive("resume", parentID, e.ID)),
	); err != nil {
		return errors.Wrapf(err, "register wait of %s on %d children", parentID, len(ids))
	}
	h.Metrics.WaitRegistered(string(waitnotify.CallbackResumeParent))

	for _, childID := range adm.ToQueue {
		spec := byID[childID]
		if err := h.Engine.InitiateNode(ctx, e.Ambiance, spec.ChildNodeID, childID, spec.StrategyMetadata, event.InitiateCreate); err != nil {
			return errors.Wrapf(err, "create queued child %s", childID)
		}
	}
	for _, childID := range adm.ToStart {
		spec := byID[childID]
		if err := h.Engine.InitiateNode(ctx, e.Ambiance, spec.ChildNodeID, childID, spec.StrategyMetadata, event.InitiateCreateAndStart); err != nil {
			return errors.Wrapf(err, "start child %s", childID)
		}
	}
	return nil
}

// rollbackChildren drops strategy iterations that are not rollback targets.
// Children without strategy metadata are kept so the rollback can reach the
// strategy nodes below them.
func rollbackChildren(specs []model.ChildSpec, targets []model.StrategyMetadata) []model.ChildSpec {
	out := make([]model.ChildSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.StrategyMetadata == nil {
			out = append(out, spec)
			continue
		}
		for i := range targets {
			if spec.StrategyMetadata.Equal(&targets[i]) {
				out = append(out, spec)
				break
			}
		}
	}
	return out
}
