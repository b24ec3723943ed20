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
	"sync"
	"testing"

	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type initiation struct {
	nodeID    string
	runtimeID string
	mode      event.InitiateMode
}

type fakeEngine struct {
	mu        sync.Mutex
	initiated []initiation
	resumed   []map[string]model.ResponseData
	concluded []string
}

func (f *fakeEngine) InitiateNode(_ context.Context, _ model.Ambiance, nodeID, runtimeID string, _ *model.StrategyMetadata, mode event.InitiateMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, initiation{nodeID: nodeID, runtimeID: runtimeID, mode: mode})
	return nil
}

func (f *fakeEngine) ResumeNodeExecution(_ context.Context, _ model.Ambiance, responses map[string]model.ResponseData, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, responses)
	return nil
}

func (f *fakeEngine) ConcludeNode(_ context.Context, n *model.NodeExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concluded = append(f.concluded, n.ID)
	return nil
}

func (f *fakeEngine) byMode(mode event.InitiateMode) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, i := range f.initiated {
		if i.mode == mode {
			out = append(out, i.runtimeID)
		}
	}
	return out
}

type fixture struct {
	nodes    repo.INodeExecutionRepository
	children repo.IConcurrentChildRepository
	engine   *fakeEngine
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repo.NewMemoryRepositories()
	waits := waitnotify.NewMemoryRegistry(waitnotify.Conf{})
	t.Cleanup(func() { _ = waits.Close() })
	engine := &fakeEngine{}
	return &fixture{
		nodes:    repos.Nodes,
		children: repos.Children,
		engine:   engine,
		d: NewDispatcher(Deps{
			Nodes:     repos.Nodes,
			Waits:     waits,
			Admission: concurrency.NewController(repos.Children, concurrency.Conf{}),
			Engine:    engine,
		}),
	}
}

func (f *fixture) node(t *testing.T, id string, status model.Status) model.Ambiance {
	t.Helper()
	a := model.Ambiance{PlanExecutionID: "pe-1", Levels: []model.Level{{RuntimeID: id, SetupID: "setup-" + id}}}
	_, _, err := f.nodes.Create(context.Background(), &model.NodeExecution{
		ID:              id,
		Ambiance:        a,
		PlanExecutionID: "pe-1",
		NodeID:          "setup-" + id,
		Status:          status,
	})
	require.NoError(t, err)
	return a
}

func syncResponse(unit string) model.ExecutableResponse {
	return model.ExecutableResponse{Kind: model.ModeSync, Sync: &model.SyncResponse{Units: []string{unit}}}
}

func childrenResponse(max int, specs ...model.ChildSpec) model.ExecutableResponse {
	return model.ExecutableResponse{
		Kind:     model.ModeChildren,
		Children: &model.ChildrenResponse{Children: specs, MaxConcurrency: max},
	}
}

func TestAddExecutableResponse_RedeliveryAppendsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "n1", model.StatusRunning)

	e := event.NewAddExecutableResponse(a, model.StatusNoOp, syncResponse("u1"))
	require.NoError(t, f.d.Dispatch(ctx, e))
	require.NoError(t, f.d.Dispatch(ctx, e))

	n, err := f.nodes.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Len(t, n.ExecutableResponses, 1)
	assert.Equal(t, model.StatusRunning, n.Status)
}

func TestAddExecutableResponse_TerminalConcludes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "n1", model.StatusRunning)

	require.NoError(t, f.d.Dispatch(ctx, event.NewAddExecutableResponse(a, model.StatusSucceeded, syncResponse("u1"))))

	n, err := f.nodes.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, n.Status)
	assert.NotNil(t, n.EndTs)
	assert.Equal(t, []string{"n1"}, f.engine.concluded)
}

func TestGuardedTransition_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "n1", model.StatusRunning)

	events := []*event.SdkResponseEvent{
		event.NewAddExecutableResponse(a, model.StatusSucceeded, syncResponse("ok")),
		event.NewAddExecutableResponse(a, model.StatusFailed, syncResponse("failed")),
		event.NewProgress(a, model.StatusNoOp, `{"percent":50}`),
	}
	var wg sync.WaitGroup
	for _, e := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.d.Dispatch(ctx, e))
		}()
	}
	wg.Wait()

	n, err := f.nodes.Get(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.Status == model.StatusSucceeded || n.Status == model.StatusFailed)
	// the loser's response is still recorded
	assert.Len(t, n.ExecutableResponses, 2)
	assert.Equal(t, float64(50), n.Progress["percent"])
	assert.Len(t, f.engine.concluded, 1)
}

func TestProgress_MalformedIsViolation(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "n1", model.StatusRunning)

	err := f.d.Dispatch(context.Background(), event.NewProgress(a, model.StatusNoOp, "{not json"))
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestSpawnChildren_EmptyResumesParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)

	require.NoError(t, f.d.Dispatch(ctx, event.NewSpawnChildren(a, childrenResponse(2))))

	assert.Empty(t, f.engine.initiated)
	require.Len(t, f.engine.resumed, 1)
	assert.Empty(t, f.engine.resumed[0])
}

func TestSpawnChildren_BoundedFanOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)

	specs := make([]model.ChildSpec, 5)
	for i := range specs {
		specs[i] = model.ChildSpec{ChildNodeID: "step"}
	}
	e := event.NewSpawnChildren(a, childrenResponse(2, specs...))
	require.NoError(t, f.d.Dispatch(ctx, e))

	started := f.engine.byMode(event.InitiateCreateAndStart)
	queued := f.engine.byMode(event.InitiateCreate)
	assert.Len(t, started, 2)
	assert.Len(t, queued, 3)

	inst, err := f.children.Get(ctx, "parent")
	require.NoError(t, err)
	assert.Len(t, inst.ChildrenNodeExecutionIDs, 5)
	assert.Equal(t, 2, inst.Cursor)
	assert.Equal(t, started, inst.ChildrenNodeExecutionIDs[:2])

	// redelivery repeats the same initiations
	require.NoError(t, f.d.Dispatch(ctx, e))
	assert.Equal(t, append(started, started...), f.engine.byMode(event.InitiateCreateAndStart))
	inst, err = f.children.Get(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, 2, inst.Cursor)
}

func TestSpawnChildren_RollbackFiltersChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)
	a.Metadata = model.ExecutionMetadata{
		ExecutionMode:   model.RunModePipelineRollback,
		RollbackTargets: []model.StrategyMetadata{{CurrentIteration: 1, TotalIterations: 3}},
	}

	specs := make([]model.ChildSpec, 3)
	for i := range specs {
		specs[i] = model.ChildSpec{
			ChildNodeID:      "deploy",
			StrategyMetadata: &model.StrategyMetadata{CurrentIteration: i, TotalIterations: 3},
		}
	}
	require.NoError(t, f.d.Dispatch(ctx, event.NewSpawnChildren(a, childrenResponse(0, specs...))))

	assert.Len(t, f.engine.byMode(event.InitiateCreateAndStart), 1)
	inst, err := f.children.Get(ctx, "parent")
	require.NoError(t, err)
	assert.Len(t, inst.ChildrenNodeExecutionIDs, 1)
}

func TestSpawnChildren_RollbackKeepsPlainChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)
	a.Metadata = model.ExecutionMetadata{
		ExecutionMode:   model.RunModePipelineRollback,
		RollbackTargets: []model.StrategyMetadata{{CurrentIteration: 1, TotalIterations: 3, Identifier: "s1_1"}},
	}

	specs := []model.ChildSpec{
		{ChildNodeID: "s1"},
		{ChildNodeID: "s2"},
		{ChildNodeID: "deploy", StrategyMetadata: &model.StrategyMetadata{CurrentIteration: 0, TotalIterations: 3, Identifier: "s1_0"}},
	}
	require.NoError(t, f.d.Dispatch(ctx, event.NewSpawnChildren(a, childrenResponse(0, specs...))))

	assert.Len(t, f.engine.byMode(event.InitiateCreateAndStart), 2)
	inst, err := f.children.Get(ctx, "parent")
	require.NoError(t, err)
	assert.Len(t, inst.ChildrenNodeExecutionIDs, 2)
}

func TestSpawnChild_WrongModeIsViolation(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)

	err := f.d.Dispatch(context.Background(), event.NewSpawnChild(a, syncResponse("u")))
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Empty(t, f.engine.initiated)
}

func TestSpawnChild_StartsChild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)

	r := model.ExecutableResponse{Kind: model.ModeChild, Child: &model.ChildResponse{ChildNodeID: "stage"}}
	e := event.NewSpawnChild(a, r)
	require.NoError(t, f.d.Dispatch(ctx, e))
	require.NoError(t, f.d.Dispatch(ctx, e))

	started := f.engine.byMode(event.InitiateCreateAndStart)
	require.Len(t, started, 2)
	assert.Equal(t, started[0], started[1])

	n, err := f.nodes.Get(ctx, "parent")
	require.NoError(t, err)
	assert.Len(t, n.ExecutableResponses, 1)
}

func TestSpawnChildren_HaltedParentAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)
	_, err := f.nodes.UpdateUnconditional(ctx, "parent", repo.AppendInterrupt(model.InterruptEffect{InterruptID: "i1", Type: model.InterruptAbort}))
	require.NoError(t, err)

	require.NoError(t, f.d.Dispatch(ctx, event.NewSpawnChildren(a, childrenResponse(1, model.ChildSpec{ChildNodeID: "x"}))))

	assert.Empty(t, f.engine.initiated)
	n, err := f.nodes.Get(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, n.Status)
	assert.Equal(t, []string{"parent"}, f.engine.concluded)
}

func TestStepResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.node(t, "n1", model.StatusRunning)

	err := f.d.Dispatch(ctx, event.NewStepResponse(a, model.StatusRunning, nil))
	assert.ErrorIs(t, err, ErrContractViolation)

	failure := &model.FailureInfo{Message: "exit 1"}
	require.NoError(t, f.d.Dispatch(ctx, event.NewStepResponse(a, model.StatusFailed, failure)))
	// second outcome loses the guard
	require.NoError(t, f.d.Dispatch(ctx, event.NewStepResponse(a, model.StatusSucceeded, nil)))

	n, err := f.nodes.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, n.Status)
	assert.Equal(t, "exit 1", n.FailureInfo.Message)
	assert.Equal(t, []string{"n1"}, f.engine.concluded)
}

func TestDispatch_UnknownKind(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "n1", model.StatusRunning)

	e := event.NewStepResponse(a, model.StatusFailed, nil)
	e.Kind = "BOGUS"
	assert.ErrorIs(t, f.d.Dispatch(context.Background(), e), ErrContractViolation)
}

func TestResume_ForwardsResponses(t *testing.T) {
	f := newFixture(t)
	a := f.node(t, "parent", model.StatusRunning)
	responses := map[string]model.ResponseData{
		"c1": {NodeExecutionID: "c1", Status: model.StatusSucceeded},
	}

	require.NoError(t, f.d.Dispatch(context.Background(), event.NewResume(a, responses, false)))
	require.Len(t, f.engine.resumed, 1)
	assert.Equal(t, model.StatusSucceeded, f.engine.resumed[0]["c1"].Status)
}
