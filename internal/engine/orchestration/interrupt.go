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
	"context"
	"fmt"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/pkg/cron"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
)

const expireJob = "expire-stale-nodes"

// RegisterInterrupt appends an interrupt to the node's history.
func (e *Engine) RegisterInterrupt(ctx context.Context, nodeID string, typ model.InterruptType, issuer string) (model.InterruptEffect, error) {
	i := model.InterruptEffect{InterruptID: id.ULID(), Type: typ, Issuer: issuer, CreatedAt: e.now()}
	if _, err := e.nodes.UpdateUnconditional(ctx, nodeID, repo.AppendInterrupt(i)); err != nil {
		return model.InterruptEffect{}, fmt.Errorf("register %s interrupt on %s: %w", typ, nodeID, err)
	}
	log.Infow("interrupt registered", "node_execution_id", nodeID, "interrupt_id", i.InterruptID, "type", typ, "issuer", issuer)
	return i, nil
}

// AbortPlan records one ABORT interrupt on every active node of the
// execution, then aborts the nodes not waiting on children. Containers end
// when their children report back.
func (e *Engine) AbortPlan(ctx context.Context, planExecutionID, issuer string) (int, error) {
	nodes, err := e.nodes.ListActiveByPlanExecution(ctx, planExecutionID)
	if err != nil {
		return 0, fmt.Errorf("list active nodes of %s: %w", planExecutionID, err)
	}
	i := model.InterruptEffect{
		InterruptID: id.Derive("abort", planExecutionID),
		Type:        model.InterruptAbort,
		Issuer:      issuer,
		CreatedAt:   e.now(),
	}
	for _, n := range nodes {
		if _, err := e.nodes.UpdateUnconditional(ctx, n.ID, repo.AppendInterrupt(i)); err != nil {
			return 0, fmt.Errorf("record abort on %s: %w", n.ID, err)
		}
	}

	aborted := 0
	for _, n := range nodes {
		if n.Status != model.StatusQueued && waitsOnChildren(n) {
			continue
		}
		if err := e.finish(ctx, n.ID, model.StatusAborted, nil); err != nil {
			return aborted, err
		}
		aborted++
	}
	log.Infow("plan execution abort requested",
		"plan_execution_id", planExecutionID,
		"active", len(nodes),
		"aborted", aborted,
		"issuer", issuer,
	)
	return aborted, nil
}

func waitsOnChildren(n *model.NodeExecution) bool {
	switch n.Mode {
	case model.ModeChild, model.ModeChildren, model.ModeChildChain:
		return true
	}
	return false
}

// ExpireStaleNodes expires nodes that have been active longer than the node
// timeout and returns how many it moved.
func (e *Engine) ExpireStaleNodes(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.NodeTimeout)
	nodes, err := e.nodes.FindActiveStartedBefore(ctx, cutoff, e.cfg.ExpireBatch)
	if err != nil {
		return 0, fmt.Errorf("find stale nodes: %w", err)
	}
	expired := 0
	for _, n := range nodes {
		i := model.InterruptEffect{
			InterruptID: id.Derive("expire", n.ID),
			Type:        model.InterruptExpire,
			Issuer:      expireJob,
			CreatedAt:   e.now(),
		}
		if _, err := e.nodes.UpdateUnconditional(ctx, n.ID, repo.AppendInterrupt(i)); err != nil {
			log.Warnw("record expiry failed", "node_execution_id", n.ID, "error", err)
			continue
		}
		if err := e.finish(ctx, n.ID, model.StatusExpired, &model.FailureInfo{
			Message:   fmt.Sprintf("active longer than %s", e.cfg.NodeTimeout),
			ErrorType: "TIMEOUT",
		}); err != nil {
			log.Warnw("expire node failed", "node_execution_id", n.ID, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		log.Infow("stale nodes expired", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}

// RegisterJobs schedules the periodic engine jobs on s.
func (e *Engine) RegisterJobs(s *cron.Scheduler) error {
	return s.AddFunc(expireJob, e.cfg.ExpireSchedule, func(ctx context.Context) error {
		_, err := e.ExpireStaleNodes(ctx)
		return err
	})
}
