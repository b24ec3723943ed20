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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: DEBUG
store:
  backend: mysql
  autoMigrate: true
queue:
  backend: asynq
  concurrency: 4
waitNotify:
  backend: redis
concurrency:
  maxConcurrency: 8
  accounts:
    acme: 2
engine:
  nodeTimeout: 2h
  expireSchedule: "@every 30s"
`

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	c, err := LoadConfigFile(writeConf(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", c.Log.Level)
	assert.Equal(t, "stdout", c.Log.Output)
	assert.Equal(t, repo.BackendMySQL, c.Store.Backend)
	assert.True(t, c.Store.AutoMigrate)
	assert.Equal(t, queue.BackendAsynq, c.Queue.Backend)
	assert.Equal(t, 4, c.Queue.Concurrency)
	assert.Equal(t, waitnotify.BackendRedis, c.WaitNotify.Backend)
	assert.Equal(t, 8, c.Concurrency.MaxConcurrency)
	assert.Equal(t, 2, c.Concurrency.Accounts["acme"])
	assert.Equal(t, 2*time.Hour, c.Engine.NodeTimeout)
	assert.Equal(t, "@every 30s", c.Engine.ExpireSchedule)
	assert.Equal(t, "UTC", c.Cron.Location)
	assert.True(t, c.NeedsRedis())
	assert.True(t, c.NeedsDatabase())
}

func TestLoadConfigFile_Defaults(t *testing.T) {
	c, err := LoadConfigFile("")
	require.NoError(t, err)

	assert.Equal(t, repo.BackendMemory, c.Store.Backend)
	assert.Equal(t, queue.BackendMemory, c.Queue.Backend)
	assert.Equal(t, waitnotify.BackendMemory, c.WaitNotify.Backend)
	assert.Equal(t, 24*time.Hour, c.Engine.NodeTimeout)
	assert.False(t, c.NeedsRedis())
	assert.False(t, c.NeedsDatabase())
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
