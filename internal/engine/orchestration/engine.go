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

// Package orchestration creates, starts, resumes and concludes node
// executions and reacts to fired rendezvous waits.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/planexec"
	"github.com/go-arcade/orchestrator/internal/engine/publisher"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/go-arcade/orchestrator/pkg/retry"
	"github.com/go-arcade/orchestrator/pkg/safe"
)

// Conf is the engine section of the orchestrator config.
type Conf struct {
	// NodeTimeout is how long a node may stay active before it is expired.
	NodeTimeout    time.Duration `mapstructure:"nodeTimeout"`
	ExpireSchedule string        `mapstructure:"expireSchedule"`
	ExpireBatch    int           `mapstructure:"expireBatch"`
	// PublishAttempts bounds initiation publishing before the node fails.
	PublishAttempts int           `mapstructure:"publishAttempts"`
	PublishBackoff  time.Duration `mapstructure:"publishBackoff"`
	NotifyAttempts  int           `mapstructure:"notifyAttempts"`
	PlanCacheBytes  int           `mapstructure:"planCacheBytes"`
}

func (c *Conf) SetDefaults() {
	if c.NodeTimeout == 0 {
		c.NodeTimeout = 24 * time.Hour
	}
	if c.ExpireSchedule == "" {
		c.ExpireSchedule = "@every 1m"
	}
	if c.ExpireBatch == 0 {
		c.ExpireBatch = 500
	}
	if c.PublishAttempts == 0 {
		c.PublishAttempts = 5
	}
	if c.PublishBackoff == 0 {
		c.PublishBackoff = 200 * time.Millisecond
	}
	if c.NotifyAttempts == 0 {
		c.NotifyAttempts = 3
	}
	if c.PlanCacheBytes == 0 {
		c.PlanCacheBytes = 32 << 20
	}
}

// EventSink accepts follow-up events for the processors.
type EventSink interface {
	Submit(ctx context.Context, e *event.SdkResponseEvent) error
}

type Engine struct {
	cfg           Conf
	nodes         repo.INodeExecutionRepository
	executions    repo.IPlanExecutionRepository
	plans         PlanSource
	waits         waitnotify.Registry
	admission     *concurrency.Controller
	publisher     publisher.Publisher
	events        EventSink
	planExecs     *planexec.Service
	continuations *Continuations
	metrics       *metrics.Orchestration
	now           func() time.Time
}

func NewEngine(
	cfg Conf,
	repos *repo.Repositories,
	plans PlanSource,
	waits waitnotify.Registry,
	admission *concurrency.Controller,
	pub publisher.Publisher,
	events EventSink,
	planExecs *planexec.Service,
	continuations *Continuations,
	m *metrics.Orchestration,
) *Engine {
	cfg.SetDefaults()
	return &Engine{
		cfg:           cfg,
		nodes:         repos.Nodes,
		executions:    repos.PlanExecutions,
		plans:         plans,
		waits:         waits,
		admission:     admission,
		publisher:     pub,
		events:        events,
		planExecs:     planExecs,
		continuations: continuations,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// InitiateNode creates the execution of plan node nodeID under parent with
// the given runtime id. A repeated call finds the existing execution.
func (e *Engine) InitiateNode(ctx context.Context, parent model.Ambiance, nodeID, runtimeID string, strategy *model.StrategyMetadata, mode event.InitiateMode) error {
	pn, err := e.plans.Node(ctx, parent.PlanID, nodeID)
	if err != nil {
		return fmt.Errorf("initiate %s: %w", runtimeID, err)
	}
	now := e.now()
	a := parent.CloneForChild(model.Level{
		RuntimeID:        runtimeID,
		SetupID:          pn.UUID,
		Identifier:       pn.Identifier,
		Group:            pn.Group,
		StepType:         pn.StepType,
		StrategyMetadata: strategy.Clone(),
		StartTs:          now,
	})
	node, created, err := e.nodes.Create(ctx, &model.NodeExecution{
		ID:                     runtimeID,
		Ambiance:               a,
		PlanExecutionID:        parent.PlanExecutionID,
		NodeID:                 pn.UUID,
		Identifier:             pn.Identifier,
		Name:                   pn.Name,
		StepType:               pn.StepType,
		Status:                 model.StatusQueued,
		ResolvedStepParameters: pn.StepParameters,
		StrategyMetadata:       strategy.Clone(),
		CreatedAt:              now,
	})
	if err != nil {
		return fmt.Errorf("create node execution %s: %w", runtimeID, err)
	}
	if created {
		log.Debugw("node execution created",
			"node_execution_id", runtimeID,
			"node_id", nodeID,
			"parent_id", parent.CurrentRuntimeID(),
			"mode", mode,
		)
	}
	if mode == event.InitiateCreate {
		return nil
	}
	return e.StartNode(ctx, node.ID, mode)
}

// StartNode moves a queued node to RUNNING and hands it to a step executor.
// Only the caller that wins the QUEUED guard publishes.
func (e *Engine) StartNode(ctx context.Context, runtimeID string, mode event.InitiateMode) error {
	node, err := e.nodes.UpdateStatusGuarded(ctx, runtimeID, model.StatusRunning,
		repo.SetStartTs(e.now()), []model.Status{model.StatusQueued})
	if err != nil {
		return fmt.Errorf("start %s: %w", runtimeID, err)
	}
	e.metrics.StatusWritten(string(model.StatusRunning), node != nil)
	if node == nil {
		log.Debugw("node already left QUEUED", "node_execution_id", runtimeID)
		return nil
	}

	pn, err := e.plans.Node(ctx, node.Ambiance.PlanID, node.NodeID)
	if err != nil {
		return fmt.Errorf("start %s: %w", runtimeID, err)
	}
	skip, err := shouldSkip(pn.SkipCondition, node)
	if err != nil {
		log.Warnw("skip condition failed", "node_execution_id", runtimeID, "condition", pn.SkipCondition, "error", err)
		return e.finish(ctx, runtimeID, model.StatusErrored, &model.FailureInfo{
			Message:   err.Error(),
			ErrorType: "SKIP_CONDITION",
		})
	}
	if skip {
		log.Infow("node skipped", "node_execution_id", runtimeID, "condition", pn.SkipCondition)
		return e.finish(ctx, runtimeID, model.StatusSkipped, nil)
	}

	init := &event.InitiateNodeEvent{
		ID:               id.Derive("initiate", node.ID),
		Ambiance:         node.Ambiance,
		NodeID:           node.NodeID,
		RuntimeID:        node.ID,
		StrategyMetadata: node.StrategyMetadata,
		InitiateMode:     mode,
		StepType:         node.StepType,
		StepParameters:   node.ResolvedStepParameters,
	}
	err = retry.Do(ctx, func(ctx context.Context) error {
		return e.publisher.PublishInitiation(ctx, init)
	},
		retry.WithMaxAttempts(e.cfg.PublishAttempts),
		retry.WithBackoff(retry.Exponential(e.cfg.PublishBackoff, 10*e.cfg.PublishBackoff)),
		retry.WithJitter(),
		retry.OnRetry(func(attempt int, err error) {
			log.Warnw("publish initiation retrying", "node_execution_id", node.ID, "attempt", attempt, "error", err)
		}),
	)
	e.metrics.InitiationPublished(err)
	if err != nil {
		log.Errorw("publish initiation failed", "node_execution_id", node.ID, "error", err)
		return e.finish(ctx, node.ID, model.StatusFailed, &model.FailureInfo{
			Message:   fmt.Sprintf("publish initiation: %v", err),
			ErrorType: "INITIATION",
		})
	}
	return nil
}

// ResumeNodeExecution runs the continuation of the node named by a's current
// level with the responses its children produced.
func (e *Engine) ResumeNodeExecution(ctx context.Context, a model.Ambiance, responses map[string]model.ResponseData, asyncError bool) error {
	nodeID := a.CurrentRuntimeID()
	node, err := e.nodes.Get(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("resume %s: %w", nodeID, err)
	}
	if node.Status.IsFinal() {
		log.Debugw("resume of concluded node ignored", "node_execution_id", nodeID, "status", node.Status)
		return nil
	}

	var out Outcome
	err = safe.Call(func() error {
		var cerr error
		out, cerr = e.continuations.For(node.StepType).Resume(ctx, node, responses, asyncError)
		return cerr
	})
	if err != nil {
		log.Errorw("continuation failed", "node_execution_id", nodeID, "step_type", node.StepType.Type, "error", err)
		return e.finish(ctx, nodeID, model.StatusFailed, &model.FailureInfo{
			Message:   err.Error(),
			ErrorType: "CONTINUATION",
		})
	}

	switch {
	case out.Response != nil:
		return e.events.Submit(ctx, followUp(node.Ambiance, out))
	case out.Status == "" || out.Status == model.StatusNoOp:
		return nil
	case out.Status.IsFinal():
		return e.finish(ctx, nodeID, out.Status, out.Failure)
	default:
		updated, err := e.nodes.UpdateStatusGuarded(ctx, nodeID, out.Status, nil, model.AllowedFrom(out.Status))
		if err != nil {
			return fmt.Errorf("resume %s: %w", nodeID, err)
		}
		e.metrics.StatusWritten(string(out.Status), updated != nil)
		return nil
	}
}

// followUp turns a continuation's response into the event that records it.
// The id is derived from the response so a repeated resume submits the same
// event.
func followUp(a model.Ambiance, out Outcome) *event.SdkResponseEvent {
	r := *out.Response
	var ev *event.SdkResponseEvent
	switch r.Kind {
	case model.ModeChild, model.ModeChildChain:
		ev = event.NewSpawnChild(a, r)
	case model.ModeChildren:
		ev = event.NewSpawnChildren(a, r)
	default:
		status := out.Status
		if status == "" {
			status = model.StatusNoOp
		}
		ev = event.NewAddExecutableResponse(a, status, r)
	}
	ev.ID = id.Derive("follow-up", a.CurrentRuntimeID(), r.Key())
	return ev
}

// ConcludeNode publishes a final node's outcome to whoever waits on it. The
// root node also concludes its plan execution.
func (e *Engine) ConcludeNode(ctx context.Context, node *model.NodeExecution) error {
	if err := e.waits.Resolve(ctx, node.ID, model.ResponseDataFor(node)); err != nil {
		return fmt.Errorf("resolve %s: %w", node.ID, err)
	}
	log.Infow("node concluded",
		"node_execution_id", node.ID,
		"identifier", node.Identifier,
		"status", node.Status,
		"plan_execution_id", node.PlanExecutionID,
	)
	if node.IsRoot() {
		return e.planExecs.Conclude(ctx, node.PlanExecutionID, node.Status)
	}
	return nil
}

// finish moves nodeID to a final status and concludes it when the guard holds.
func (e *Engine) finish(ctx context.Context, nodeID string, status model.Status, failure *model.FailureInfo) error {
	node, err := e.nodes.UpdateStatusGuarded(ctx, nodeID, status,
		repo.Finish(e.now(), failure), model.AllowedFrom(status))
	if err != nil {
		return fmt.Errorf("move %s to %s: %w", nodeID, status, err)
	}
	e.metrics.StatusWritten(string(status), node != nil)
	if node == nil {
		log.Infow("status transition lost race", "node_execution_id", nodeID, "status", status)
		return nil
	}
	return e.ConcludeNode(ctx, node)
}
