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

package concurrency

import (
	"context"
	"testing"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_MaxConcurrency(t *testing.T) {
	c := NewController(repo.NewMemoryConcurrentChildRepo(), Conf{
		MaxConcurrency: 10,
		Accounts:       map[string]int{"small": 3},
	})
	small := model.Ambiance{SetupAbstractions: map[string]string{model.SetupAccountID: "small"}}

	tests := []struct {
		name     string
		ambiance model.Ambiance
		declared int
		want     int
	}{
		{name: "declared under ceiling", declared: 4, want: 4},
		{name: "declared over ceiling", declared: 50, want: 10},
		{name: "undeclared uses ceiling", declared: 0, want: 10},
		{name: "account override", ambiance: small, declared: 8, want: 3},
		{name: "negative declared", ambiance: small, declared: -2, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.MaxConcurrency(tt.ambiance, tt.declared))
		})
	}

	zero := &Controller{children: repo.NewMemoryConcurrentChildRepo(), cfg: Conf{}}
	assert.Equal(t, 1, zero.MaxConcurrency(model.Ambiance{}, 0))
}

func TestController_BoundedFanOut(t *testing.T) {
	ctx := context.Background()
	children := repo.NewMemoryConcurrentChildRepo()
	c := NewController(children, Conf{})

	adm, err := c.Admit(ctx, "p", []string{"c1", "c2", "c3", "c4", "c5"}, 2)
	require.NoError(t, err)
	assert.False(t, adm.Existing)
	assert.Equal(t, []string{"c1", "c2"}, adm.ToStart)
	assert.Equal(t, []string{"c3", "c4", "c5"}, adm.ToQueue)

	next, err := c.OnChildCompleted(ctx, "p", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, next)

	inst, err := children.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, inst.Cursor)

	again, err := c.Admit(ctx, "p", []string{"c1", "c2", "c3", "c4", "c5"}, 2)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, []string{"c1", "c2"}, again.ToStart)

	for _, done := range []string{"c2", "c3"} {
		_, err := c.OnChildCompleted(ctx, "p", done)
		require.NoError(t, err)
	}
	next, err = c.OnChildCompleted(ctx, "p", "c4")
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestController_WindowLargerThanSet(t *testing.T) {
	c := NewController(repo.NewMemoryConcurrentChildRepo(), Conf{})
	adm, err := c.Admit(context.Background(), "p", []string{"a", "b"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, adm.ToStart)
	assert.Empty(t, adm.ToQueue)
}
