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

package planexec

import (
	"context"
	"testing"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, statuses ...model.Status) (*Service, *repo.Repositories) {
	t.Helper()
	ctx := context.Background()
	repos := repo.NewMemoryRepositories()
	_, _, err := repos.PlanExecutions.Create(ctx, &model.PlanExecution{ID: "pe", PlanID: "p", Status: model.StatusRunning})
	require.NoError(t, err)
	for i, s := range statuses {
		_, _, err := repos.Nodes.Create(ctx, &model.NodeExecution{
			ID:              string(rune('a' + i)),
			PlanExecutionID: "pe",
			Status:          s,
		})
		require.NoError(t, err)
	}
	return NewService(repos), repos
}

func TestCalculateAndUpdateRunningStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []model.Status
		want     model.Status
	}{
		{"running wins", []model.Status{model.StatusQueued, model.StatusAsyncWaiting, model.StatusRunning}, model.StatusRunning},
		{"waiting over queued", []model.Status{model.StatusSucceeded, model.StatusQueued, model.StatusTaskWaiting}, model.StatusTaskWaiting},
		{"all final leaves status", []model.Status{model.StatusSucceeded, model.StatusFailed}, model.StatusRunning},
		{"paused", []model.Status{model.StatusPaused, model.StatusSucceeded}, model.StatusPaused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, repos := setup(t, tt.statuses...)
			require.NoError(t, svc.CalculateAndUpdateRunningStatus(ctx, "pe"))
			pe, err := repos.PlanExecutions.Get(ctx, "pe")
			require.NoError(t, err)
			assert.Equal(t, tt.want, pe.Status)
		})
	}
}

func TestConclude(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, model.StatusSucceeded)

	assert.Error(t, svc.Conclude(ctx, "pe", model.StatusRunning))
	require.NoError(t, svc.Conclude(ctx, "pe", model.StatusFailed))

	pe, err := svc.Get(ctx, "pe")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, pe.Status)
	assert.NotNil(t, pe.EndTs)

	// a concluded execution is not reopened by a late refresh
	require.NoError(t, svc.CalculateAndUpdateRunningStatus(ctx, "pe"))
	require.NoError(t, svc.Conclude(ctx, "pe", model.StatusSucceeded))
	pe, err = svc.Get(ctx, "pe")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, pe.Status)
}
