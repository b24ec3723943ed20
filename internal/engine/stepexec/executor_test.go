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

package stepexec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/event"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []*event.SdkResponseEvent
}

func (s *captureSink) Submit(_ context.Context, e *event.SdkResponseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// planRepoNodes serves a plan repository's nodes as a NodeSource.
type planRepoNodes struct {
	*repo.MemoryPlanRepo
}

func (p planRepoNodes) Node(ctx context.Context, planID, nodeID string) (*model.PlanNode, error) {
	return p.GetNode(ctx, planID, nodeID)
}

func newPlanRepo(t *testing.T, nodes ...model.PlanNode) planRepoNodes {
	t.Helper()
	plans := repo.NewMemoryPlanRepo()
	require.NoError(t, plans.SavePlan(context.Background(), &model.Plan{UUID: "plan", RootNodeID: nodes[0].UUID, Nodes: nodes}))
	return planRepoNodes{plans}
}

func initiation(nodeID, runtimeID string, params []byte) *event.InitiateNodeEvent {
	return &event.InitiateNodeEvent{
		ID:             "init-" + runtimeID,
		Ambiance:       model.Ambiance{PlanExecutionID: "pe", PlanID: "plan", Levels: []model.Level{{RuntimeID: runtimeID, SetupID: nodeID}}},
		NodeID:         nodeID,
		RuntimeID:      runtimeID,
		InitiateMode:   event.InitiateCreateAndStart,
		StepParameters: params,
	}
}

func TestExecute_Containers(t *testing.T) {
	plans := newPlanRepo(t,
		model.PlanNode{UUID: "fork", Identifier: "fork", Children: []string{"a", "b"}, MaxConcurrency: 1},
		model.PlanNode{UUID: "chain", Identifier: "chain", StepType: model.StepType{Type: model.StepTypeChain}, Children: []string{"a", "b"}},
		model.PlanNode{UUID: "stage", Identifier: "stage", Children: []string{"a"}},
		model.PlanNode{UUID: "matrix", Identifier: "matrix", Children: []string{"a"}, Iterations: 3},
		model.PlanNode{UUID: "a", Identifier: "a"},
		model.PlanNode{UUID: "b", Identifier: "b"},
	)
	tests := []struct {
		node  string
		kind  event.Kind
		check func(t *testing.T, e *event.SdkResponseEvent)
	}{
		{"fork", event.KindSpawnChildren, func(t *testing.T, e *event.SdkResponseEvent) {
			r := e.SpawnChildren.Response.Children
			assert.Len(t, r.Children, 2)
			assert.Equal(t, 1, r.MaxConcurrency)
		}},
		{"chain", event.KindSpawnChild, func(t *testing.T, e *event.SdkResponseEvent) {
			r := e.SpawnChild.Response
			assert.Equal(t, model.ModeChildChain, r.Kind)
			assert.Equal(t, "a", r.ChildChain.NextChildID)
			assert.False(t, r.ChildChain.ChainEnd)
		}},
		{"stage", event.KindSpawnChild, func(t *testing.T, e *event.SdkResponseEvent) {
			assert.Equal(t, "a", e.SpawnChild.Response.Child.ChildNodeID)
		}},
		{"matrix", event.KindSpawnChildren, func(t *testing.T, e *event.SdkResponseEvent) {
			specs := e.SpawnChildren.Response.Children.Children
			require.Len(t, specs, 3)
			assert.Equal(t, 2, specs[2].StrategyMetadata.CurrentIteration)
			assert.Equal(t, "matrix_2", specs[2].StrategyMetadata.Identifier)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.node, func(t *testing.T) {
			sink := &captureSink{}
			x := NewExecutor(plans, sink, NewShellRunner())
			require.NoError(t, x.Execute(context.Background(), initiation(tt.node, "r-"+tt.node, nil)))
			require.Len(t, sink.events, 1)
			assert.Equal(t, tt.kind, sink.events[0].Kind)
			require.NoError(t, sink.events[0].Validate())
			tt.check(t, sink.events[0])
		})
	}
}

func TestExecute_LeafReportsOutcome(t *testing.T) {
	plans := newPlanRepo(t, model.PlanNode{UUID: "a", Identifier: "a"})
	sink := &captureSink{}
	x := NewExecutor(plans, sink, RunnerFunc(func(context.Context, *event.InitiateNodeEvent) (model.Status, *model.FailureInfo) {
		return model.StatusFailed, &model.FailureInfo{Message: "boom"}
	}))

	e := initiation("a", "r1", nil)
	require.NoError(t, x.Execute(context.Background(), e))
	require.NoError(t, x.Execute(context.Background(), e))

	require.Len(t, sink.events, 4)
	assert.Equal(t, event.KindHandleProgress, sink.events[0].Kind)
	assert.Equal(t, event.KindHandleStepResponse, sink.events[1].Kind)
	assert.Equal(t, model.StatusFailed, sink.events[1].StepResponse.Status)
	// ids repeat for a repeated initiation
	assert.Equal(t, sink.events[1].ID, sink.events[3].ID)
}

func TestShellRunner(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		want    model.Status
		message string
	}{
		{"no command", `{}`, model.StatusSucceeded, ""},
		{"success", `{"command":"echo ok"}`, model.StatusSucceeded, ""},
		{"exit code", `{"command":"exit 3"}`, model.StatusFailed, "exit code 3"},
		{"env", `{"command":"test \"$GREETING\" = hi","env":{"GREETING":"hi"}}`, model.StatusSucceeded, ""},
		{"timeout", `{"command":"sleep 5","timeout":"50ms"}`, model.StatusExpired, "timed out after 50ms"},
		{"bad timeout", `{"command":"true","timeout":"soon"}`, model.StatusErrored, "invalid timeout \"soon\""},
		{"bad json", `{"command":`, model.StatusErrored, ""},
	}
	r := &ShellRunner{Shell: "/bin/sh", Timeout: time.Minute}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, failure := r.Run(context.Background(), initiation("a", "r1", []byte(tt.params)))
			assert.Equal(t, tt.want, status)
			if tt.message != "" {
				require.NotNil(t, failure)
				assert.Equal(t, tt.message, failure.Message)
			}
		})
	}
}
