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
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/planexec"
	"github.com/go-arcade/orchestrator/internal/engine/processor"
	"github.com/go-arcade/orchestrator/internal/engine/publisher"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/stepexec"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine *Engine
	repos  *repo.Repositories
	bus    *processor.Bus
	offset atomic.Int64
}

func newHarness(t *testing.T, runner stepexec.Runner, extra map[string]Continuation) *harness {
	t.Helper()
	h := &harness{repos: repo.NewMemoryRepositories()}
	waits := waitnotify.NewMemoryRegistry(waitnotify.Conf{})
	broker := queue.NewMemoryBroker(queue.Conf{Concurrency: 4, MaxRetry: 2})
	h.bus = processor.NewBus(broker)
	plans := NewCachedPlanSource(h.repos.Plans, 0)
	admission := concurrency.NewController(h.repos.Children, concurrency.Conf{})
	planExecs := planexec.NewService(h.repos)

	table := map[string]Continuation{model.StepTypeChain: ChainContinuation(plans)}
	maps.Copy(table, extra)
	x := stepexec.NewExecutor(plans, h.bus, runner)
	h.engine = NewEngine(Conf{NodeTimeout: time.Hour}, h.repos, plans, waits, admission,
		publisher.FuncPublisher(x.Execute), h.bus, planExecs, NewContinuations(table), nil)
	h.engine.now = func() time.Time { return time.Now().UTC().Add(time.Duration(h.offset.Load())) }

	h.bus.Subscribe(processor.NewDispatcher(processor.Deps{
		Nodes:          h.repos.Nodes,
		Waits:          waits,
		Admission:      admission,
		Engine:         h.engine,
		PlanExecutions: planExecs,
	}))
	require.NoError(t, broker.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		broker.Shutdown()
		_ = waits.Close()
	})
	return h
}

func (h *harness) start(t *testing.T, root model.PlanNode, leaves ...model.PlanNode) *model.PlanExecution {
	t.Helper()
	return h.startWith(t, model.ExecutionMetadata{TriggeredBy: "test"}, root, leaves...)
}

func (h *harness) startWith(t *testing.T, metadata model.ExecutionMetadata, root model.PlanNode, nodes ...model.PlanNode) *model.PlanExecution {
	t.Helper()
	plan := &model.Plan{UUID: "plan-" + t.Name(), RootNodeID: root.UUID, Nodes: append([]model.PlanNode{root}, nodes...)}
	pe, err := h.engine.StartPlan(context.Background(), plan, metadata, nil)
	require.NoError(t, err)
	return pe
}

func (h *harness) awaitPlan(t *testing.T, planExecutionID string) model.Status {
	t.Helper()
	var status model.Status
	require.Eventually(t, func() bool {
		pe, err := h.repos.PlanExecutions.Get(context.Background(), planExecutionID)
		require.NoError(t, err)
		status = pe.Status
		return status.IsFinal()
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func (h *harness) counts(t *testing.T, planExecutionID string) map[model.Status]int {
	t.Helper()
	statuses, err := h.repos.Nodes.ListStatusesByPlanExecution(context.Background(), planExecutionID)
	require.NoError(t, err)
	out := map[model.Status]int{}
	for _, s := range statuses {
		out[s]++
	}
	return out
}

func leaves(ids ...string) []model.PlanNode {
	out := make([]model.PlanNode, len(ids))
	for i, name := range ids {
		out[i] = model.PlanNode{UUID: name, Identifier: name, StepType: model.StepType{Type: "Shell", Category: model.StepCategoryStep}}
	}
	return out
}

func fork(children ...string) model.PlanNode {
	return model.PlanNode{
		UUID:       "root",
		Identifier: "root",
		StepType:   model.StepType{Type: "Fork", Category: model.StepCategoryFork},
		Children:   children,
	}
}

func succeed(context.Context, *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
	return model.StatusSucceeded, nil
}

// hold leaves every leaf running.
func hold(context.Context, *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
	return model.StatusNoOp, nil
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) runner(fail ...string) stepexec.RunnerFunc {
	return func(_ context.Context, e *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
		l, _ := e.Ambiance.CurrentLevel()
		r.mu.Lock()
		r.ids = append(r.ids, l.Identifier)
		r.mu.Unlock()
		for _, f := range fail {
			if f == l.Identifier {
				return model.StatusFailed, &model.FailureInfo{Message: "exit 1"}
			}
		}
		return model.StatusSucceeded, nil
	}
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestPlan_ForkSucceeds(t *testing.T) {
	h := newHarness(t, stepexec.RunnerFunc(succeed), nil)
	root := fork("a", "b", "c")
	root.MaxConcurrency = 2
	pe := h.start(t, root, leaves("a", "b", "c")...)

	assert.Equal(t, model.StatusSucceeded, h.awaitPlan(t, pe.ID))
	assert.Equal(t, map[model.Status]int{model.StatusSucceeded: 4}, h.counts(t, pe.ID))
}

func TestPlan_ChildFailureFailsParent(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec.runner("b"), nil)
	pe := h.start(t, fork("a", "b", "c"), leaves("a", "b", "c")...)

	assert.Equal(t, model.StatusFailed, h.awaitPlan(t, pe.ID))
	root, err := h.repos.Nodes.Get(context.Background(), id.Derive(pe.ID, "root"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, root.FailureInfo.Details)
}

func TestPlan_ChainRunsInOrder(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec.runner(), nil)
	root := model.PlanNode{
		UUID:       "root",
		Identifier: "root",
		StepType:   model.StepType{Type: model.StepTypeChain, Category: model.StepCategoryStage},
		Children:   []string{"a", "b", "c"},
	}
	pe := h.start(t, root, leaves("a", "b", "c")...)

	assert.Equal(t, model.StatusSucceeded, h.awaitPlan(t, pe.ID))
	assert.Equal(t, []string{"a", "b", "c"}, rec.seen())
}

func TestPlan_ChainRepeatedChild(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec.runner(), nil)
	root := model.PlanNode{
		UUID:       "root",
		Identifier: "root",
		StepType:   model.StepType{Type: model.StepTypeChain, Category: model.StepCategoryStage},
		Children:   []string{"a", "b", "a"},
	}
	pe := h.start(t, root, leaves("a", "b")...)

	assert.Equal(t, model.StatusSucceeded, h.awaitPlan(t, pe.ID))
	assert.Equal(t, []string{"a", "b", "a"}, rec.seen())
	assert.Equal(t, map[model.Status]int{model.StatusSucceeded: 4}, h.counts(t, pe.ID))
}

func TestPlan_ChainStopsAtFailure(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec.runner("b"), nil)
	root := model.PlanNode{
		UUID:       "root",
		Identifier: "root",
		StepType:   model.StepType{Type: model.StepTypeChain},
		Children:   []string{"a", "b", "c"},
	}
	pe := h.start(t, root, leaves("a", "b", "c")...)

	assert.Equal(t, model.StatusFailed, h.awaitPlan(t, pe.ID))
	assert.Equal(t, []string{"a", "b"}, rec.seen())
}

func TestPlan_SkipCondition(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, rec.runner(), nil)
	nodes := leaves("a", "b")
	nodes[1].SkipCondition = `identifier == "b"`
	pe := h.start(t, fork("a", "b"), nodes...)

	assert.Equal(t, model.StatusSucceeded, h.awaitPlan(t, pe.ID))
	assert.Equal(t, []string{"a"}, rec.seen())
	assert.Equal(t, 1, h.counts(t, pe.ID)[model.StatusSkipped])
}

func TestPlan_BoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, stepexec.RunnerFunc(hold), nil)
	root := fork("a", "b", "c", "d")
	root.MaxConcurrency = 2
	pe := h.start(t, root, leaves("a", "b", "c", "d")...)

	// root plus two admitted leaves
	require.Eventually(t, func() bool {
		c := h.counts(t, pe.ID)
		return c[model.StatusRunning] == 3 && c[model.StatusQueued] == 2
	}, 5*time.Second, 10*time.Millisecond)

	active, err := h.repos.Nodes.ListActiveByPlanExecution(ctx, pe.ID)
	require.NoError(t, err)
	var leaf *model.NodeExecution
	for _, n := range active {
		if n.Status == model.StatusRunning && !n.IsRoot() {
			leaf = n
			break
		}
	}
	require.NotNil(t, leaf)
	require.NoError(t, h.bus.Submit(ctx, event.NewStepResponse(leaf.Ambiance, model.StatusSucceeded, nil)))

	require.Eventually(t, func() bool {
		c := h.counts(t, pe.ID)
		return c[model.StatusSucceeded] == 1 && c[model.StatusRunning] == 3 && c[model.StatusQueued] == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAbortPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, stepexec.RunnerFunc(hold), nil)
	root := fork("a", "b")
	root.MaxConcurrency = 1
	pe := h.start(t, root, leaves("a", "b")...)

	require.Eventually(t, func() bool {
		c := h.counts(t, pe.ID)
		return c[model.StatusRunning] == 2 && c[model.StatusQueued] == 1
	}, 5*time.Second, 10*time.Millisecond)

	aborted, err := h.engine.AbortPlan(ctx, pe.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, aborted)
	assert.Equal(t, model.StatusAborted, h.awaitPlan(t, pe.ID))
	assert.Equal(t, map[model.Status]int{model.StatusAborted: 3}, h.counts(t, pe.ID))
}

func TestExpireStaleNodes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, stepexec.RunnerFunc(hold), nil)
	root := fork("a")
	pe := h.start(t, root, leaves("a")...)

	require.Eventually(t, func() bool {
		return h.counts(t, pe.ID)[model.StatusRunning] == 2
	}, 5*time.Second, 10*time.Millisecond)

	n, err := h.engine.ExpireStaleNodes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.offset.Store(int64(2 * time.Hour))
	n, err = h.engine.ExpireStaleNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.StatusExpired, h.awaitPlan(t, pe.ID))
}

func TestContinuationPanicFailsNode(t *testing.T) {
	boom := ContinuationFunc(func(context.Context, *model.NodeExecution, map[string]model.ResponseData, bool) (Outcome, error) {
		panic("unexpected child shape")
	})
	h := newHarness(t, stepexec.RunnerFunc(succeed), map[string]Continuation{"Boom": boom})
	root := model.PlanNode{UUID: "root", Identifier: "root", StepType: model.StepType{Type: "Boom"}, Children: []string{"a"}}
	pe := h.start(t, root, leaves("a")...)

	assert.Equal(t, model.StatusFailed, h.awaitPlan(t, pe.ID))
	assert.Equal(t, 1, h.counts(t, pe.ID)[model.StatusSucceeded])
}

func TestStartPlan_Invalid(t *testing.T) {
	h := newHarness(t, stepexec.RunnerFunc(succeed), nil)
	tests := []struct {
		name string
		plan *model.Plan
	}{
		{"no uuid", &model.Plan{RootNodeID: "a", Nodes: leaves("a")}},
		{"missing root", &model.Plan{UUID: "p", RootNodeID: "x", Nodes: leaves("a")}},
		{"unknown child", &model.Plan{UUID: "p", RootNodeID: "root", Nodes: append([]model.PlanNode{fork("a", "z")}, leaves("a")...)}},
		{"cycle", &model.Plan{UUID: "p", RootNodeID: "root", Nodes: []model.PlanNode{
			fork("a"),
			{UUID: "a", Identifier: "a", StepType: model.StepType{Type: "Fork"}, Children: []string{"root"}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.StartPlan(context.Background(), tt.plan, model.ExecutionMetadata{}, nil)
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}

const stepTypeStrategy = "Strategy"

func strategy(uuid string, n int, child string) model.PlanNode {
	return model.PlanNode{
		UUID:       uuid,
		Identifier: uuid,
		StepType:   model.StepType{Type: stepTypeStrategy, Category: model.StepCategoryStrategy},
		Children:   []string{child},
		Iterations: n,
	}
}

// iterations records the strategy iteration each leaf ran under.
type iterations struct {
	mu  sync.Mutex
	ran []string
}

func (it *iterations) runner(_ context.Context, e *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
	l, _ := e.Ambiance.CurrentLevel()
	name := l.Identifier
	if l.StrategyMetadata != nil {
		name = l.StrategyMetadata.Identifier
	}
	it.mu.Lock()
	it.ran = append(it.ran, name)
	it.mu.Unlock()
	return model.StatusSucceeded, nil
}

func (it *iterations) seen() []string {
	it.mu.Lock()
	defer it.mu.Unlock()
	return append([]string(nil), it.ran...)
}

func TestPlan_RollbackRunsTargetIteration(t *testing.T) {
	rollback := model.ExecutionMetadata{
		ExecutionMode: model.RunModePipelineRollback,
		TriggeredBy:   "test",
		RollbackTargets: []model.StrategyMetadata{
			{CurrentIteration: 1, TotalIterations: 3, Identifier: "s1_1"},
		},
	}

	tests := []struct {
		name    string
		root    model.PlanNode
		nodes   []model.PlanNode
		wantRan []string
		wantOK  int
	}{
		{
			name:    "strategy root",
			root:    strategy("s1", 3, "deploy"),
			nodes:   leaves("deploy"),
			wantRan: []string{"s1_1"},
			wantOK:  2,
		},
		{
			name:    "strategy under fork",
			root:    fork("s1", "s2"),
			nodes:   append([]model.PlanNode{strategy("s1", 3, "deploy")}, leaves("deploy", "s2")...),
			wantRan: []string{"s1_1", "s2"},
			wantOK:  4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu      sync.Mutex
				resumed []int
			)
			counting := ContinuationFunc(func(ctx context.Context, node *model.NodeExecution, responses map[string]model.ResponseData, asyncError bool) (Outcome, error) {
				mu.Lock()
				resumed = append(resumed, len(responses))
				mu.Unlock()
				return AggregateContinuation(ctx, node, responses, asyncError)
			})
			it := &iterations{}
			h := newHarness(t, stepexec.RunnerFunc(it.runner), map[string]Continuation{stepTypeStrategy: counting})
			pe := h.startWith(t, rollback, tt.root, tt.nodes...)

			assert.Equal(t, model.StatusSucceeded, h.awaitPlan(t, pe.ID))
			assert.ElementsMatch(t, tt.wantRan, it.seen())
			assert.Equal(t, map[model.Status]int{model.StatusSucceeded: tt.wantOK}, h.counts(t, pe.ID))
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, []int{1}, resumed)
		})
	}
}
