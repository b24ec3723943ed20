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

package waitnotify

import (
	"context"
	"testing"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(id string, status model.Status) model.ResponseData {
	return model.ResponseData{NodeExecutionID: id, Status: status}
}

func next(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "notification channel closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func assertQuiet(t *testing.T, ch <-chan Notification) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification %s", n.WaitID)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestRegistry(t *testing.T) *MemoryRegistry {
	t.Helper()
	r := NewMemoryRegistry(Conf{})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestMemoryRegistry_FiresOnceWhenAllResolved(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	cb := Callback{Kind: CallbackResumeParent, ParentID: "p"}

	waitID, err := r.WaitForAll(ctx, []string{"a", "b", "c"}, cb)
	require.NoError(t, err)

	require.NoError(t, r.Resolve(ctx, "c", response("c", model.StatusSucceeded)))
	require.NoError(t, r.Resolve(ctx, "a", response("a", model.StatusFailed)))
	assertQuiet(t, r.Notifications())

	// a second resolve of b must not fire twice
	require.NoError(t, r.Resolve(ctx, "b", response("b", model.StatusSucceeded)))
	require.NoError(t, r.Resolve(ctx, "b", response("b", model.StatusFailed)))

	n := next(t, r.Notifications())
	assert.Equal(t, waitID, n.WaitID)
	assert.Equal(t, cb, n.Callback)
	require.Len(t, n.Responses, 3)
	assert.Equal(t, model.StatusFailed, n.Responses["a"].Status)
	assert.Equal(t, model.StatusSucceeded, n.Responses["b"].Status)
	assertQuiet(t, r.Notifications())
}

func TestMemoryRegistry_ResolveBeforeRegister(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Resolve(ctx, "a", response("a", model.StatusSucceeded)))
	_, err := r.WaitForAll(ctx, []string{"a"}, Callback{Kind: CallbackResumeParent, ParentID: "p"})
	require.NoError(t, err)

	n := next(t, r.Notifications())
	assert.Equal(t, "a", n.Responses["a"].NodeExecutionID)
}

func TestMemoryRegistry_SharedKeys(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	_, err := r.WaitForAll(ctx, []string{"c1"}, Callback{Kind: CallbackMaxConcurrency, ParentID: "p", ChildID: "c1"}, WithWaitID("slot-c1"))
	require.NoError(t, err)
	_, err = r.WaitForAll(ctx, []string{"c1", "c2"}, Callback{Kind: CallbackResumeParent, ParentID: "p"}, WithWaitID("all"))
	require.NoError(t, err)

	require.NoError(t, r.Resolve(ctx, "c1", response("c1", model.StatusSucceeded)))
	n := next(t, r.Notifications())
	assert.Equal(t, "slot-c1", n.WaitID)
	assertQuiet(t, r.Notifications())

	require.NoError(t, r.Resolve(ctx, "c2", response("c2", model.StatusSucceeded)))
	n = next(t, r.Notifications())
	assert.Equal(t, "all", n.WaitID)
	assert.Len(t, n.Responses, 2)
}

func TestMemoryRegistry_IdempotentRegistration(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	cb := Callback{Kind: CallbackResumeParent, ParentID: "p"}

	for i := 0; i < 2; i++ {
		id, err := r.WaitForAll(ctx, []string{"a"}, cb, WithWaitID("w"))
		require.NoError(t, err)
		assert.Equal(t, "w", id)
	}
	require.NoError(t, r.Resolve(ctx, "a", response("a", model.StatusSucceeded)))
	next(t, r.Notifications())

	// redelivered registration after firing
	_, err := r.WaitForAll(ctx, []string{"a"}, cb, WithWaitID("w"))
	require.NoError(t, err)
	assertQuiet(t, r.Notifications())
}

func TestMemoryRegistry_Rejects(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry(Conf{})

	_, err := r.WaitForAll(ctx, nil, Callback{Kind: CallbackResumeParent})
	assert.ErrorIs(t, err, ErrNoCorrelationIDs)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, ok := <-r.Notifications()
	assert.False(t, ok)
	assert.ErrorIs(t, r.Resolve(ctx, "a", model.ResponseData{}), ErrClosed)
}

func TestRegistryState_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newRegistryState(func() time.Time { return now })

	s.responses["old"] = storedResponse{at: now.Add(-2 * time.Hour)}
	s.responses["held"] = storedResponse{at: now.Add(-2 * time.Hour)}
	s.byKey["held"] = map[string]struct{}{"w": {}}
	s.responses["fresh"] = storedResponse{at: now}
	s.fired["gone"] = now.Add(-2 * time.Hour)

	s.sweep(time.Hour)
	assert.NotContains(t, s.responses, "old")
	assert.Contains(t, s.responses, "held")
	assert.Contains(t, s.responses, "fresh")
	assert.NotContains(t, s.fired, "gone")
}
