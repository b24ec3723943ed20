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

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	fc := NewFastCache(0)
	fc.now = func() time.Time { return now }

	require.NoError(t, fc.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, fc.Set(ctx, "b", []byte("2"), 0))

	got, err := fc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	now = now.Add(2 * time.Minute)
	_, err = fc.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	got, err = fc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	require.NoError(t, fc.Del(ctx, "b"))
	_, err = fc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestTiered_ReadThrough(t *testing.T) {
	ctx := context.Background()
	local, remote := NewFastCache(0), NewFastCache(0)
	tc := NewTiered(local, remote, 0.5)

	require.NoError(t, remote.Set(ctx, "k", []byte("v"), time.Hour))
	_, err := local.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)

	got, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	got, err = local.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, tc.Del(ctx, "k"))
	_, err = tc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

type item struct {
	ID   string `json:"id"`
	Rank int    `json:"rank"`
}

func TestCachedQuery(t *testing.T) {
	ctx := context.Background()
	q := NewCachedQuery[item](NewFastCache(0), "item:", time.Hour)

	loads := 0
	load := func(context.Context) (item, error) {
		loads++
		return item{ID: "x", Rank: 7}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := q.Get(ctx, "x", load)
		require.NoError(t, err)
		assert.Equal(t, item{ID: "x", Rank: 7}, got)
	}
	assert.Equal(t, 1, loads)

	require.NoError(t, q.Invalidate(ctx, "x"))
	_, err := q.Get(ctx, "x", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	boom := errors.New("boom")
	_, err = q.Get(ctx, "y", func(context.Context) (item, error) { return item{}, boom })
	assert.ErrorIs(t, err, boom)
}
