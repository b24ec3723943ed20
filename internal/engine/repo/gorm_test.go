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

package repo

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// openTestDB connects to ORCHESTRATOR_TEST_MYSQL_DSN, skipping when unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("ORCHESTRATOR_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("ORCHESTRATOR_TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestGormNodes_GuardedUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := NewNodeExecutionRepo(db)
	nodeID := id.UUID()
	pe := id.Xid()

	_, created, err := r.Create(ctx, newNode(nodeID, pe, model.StatusRunning))
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = r.Create(ctx, newNode(nodeID, pe, model.StatusQueued))
	require.NoError(t, err)
	assert.False(t, created)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, s := range []model.Status{model.StatusSucceeded, model.StatusFailed, model.StatusAborted} {
		wg.Add(1)
		go func(s model.Status) {
			defer wg.Done()
			n, err := r.UpdateStatusGuarded(ctx, nodeID, s, nil, []model.Status{model.StatusRunning})
			assert.NoError(t, err)
			if n != nil {
				wins.Add(1)
			}
		}(s)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	resp := model.ExecutableResponse{Kind: model.ModeTask, Task: &model.TaskResponse{TaskID: "t1"}}
	n, err := r.UpdateUnconditional(ctx, nodeID, AppendResponse(resp))
	require.NoError(t, err)
	assert.True(t, n.Status.IsFinal())
	assert.Len(t, n.ExecutableResponses, 1)

	statuses, err := r.ListStatusesByPlanExecution(ctx, pe)
	require.NoError(t, err)
	assert.Len(t, statuses, 1)
}

func TestGormChildren_Advance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := NewConcurrentChildRepo(db)
	parent := id.UUID()

	_, created, err := r.CreateIfAbsent(ctx, &model.ConcurrentChildInstance{
		ParentID:                 parent,
		ChildrenNodeExecutionIDs: []string{"a", "b", "c"},
		Cursor:                   1,
		MaxConcurrency:           1,
	})
	require.NoError(t, err)
	assert.True(t, created)

	var got []string
	for {
		next, ok, err := r.Advance(ctx, parent)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, next)
	}
	assert.Equal(t, []string{"b", "c"}, got)
}
