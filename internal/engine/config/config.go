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
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/orchestration"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/cache"
	"github.com/go-arcade/orchestrator/pkg/database"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/go-arcade/orchestrator/pkg/pprof"
	"github.com/go-arcade/orchestrator/pkg/trace"
	"github.com/spf13/viper"
)

// CronConf controls the maintenance scheduler.
type CronConf struct {
	// Lock makes replicas share job ticks through a redis lock.
	Lock     bool          `mapstructure:"lock"`
	LockTTL  time.Duration `mapstructure:"lockTTL"`
	Location string        `mapstructure:"location"`
}

type AppConfig struct {
	Log         log.Conf           `mapstructure:"log"`
	Store       repo.Conf          `mapstructure:"store"`
	Database    database.Conf      `mapstructure:"database"`
	Redis       cache.Redis        `mapstructure:"redis"`
	Queue       queue.Conf         `mapstructure:"queue"`
	WaitNotify  waitnotify.Conf    `mapstructure:"waitNotify"`
	Concurrency concurrency.Conf   `mapstructure:"concurrency"`
	Engine      orchestration.Conf `mapstructure:"engine"`
	Cron        CronConf           `mapstructure:"cron"`
	Metrics     metrics.Conf       `mapstructure:"metrics"`
	Trace       trace.Conf         `mapstructure:"trace"`
	Pprof       pprof.Conf         `mapstructure:"pprof"`
}

// NeedsRedis reports whether any configured backend talks to redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Queue.Backend == queue.BackendAsynq ||
		c.WaitNotify.Backend == waitnotify.BackendRedis ||
		c.Cron.Lock
}

// NeedsDatabase reports whether a MySQL or ClickHouse connection is required.
func (c *AppConfig) NeedsDatabase() bool {
	return c.Store.Backend == repo.BackendMySQL || c.Queue.RecordTasks
}

var (
	cfg  AppConfig
	mu   sync.RWMutex
	once sync.Once
)

// NewConf loads confPath once per process. An empty path yields the defaults.
func NewConf(confPath string) AppConfig {
	once.Do(func() {
		loaded, err := LoadConfigFile(confPath)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return Current()
}

// Current returns the latest loaded configuration.
func Current() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadConfigFile reads confPath and watches it. Only the log section is
// applied on change; everything else needs a restart.
func LoadConfigFile(confPath string) (AppConfig, error) {
	var out AppConfig
	if confPath == "" {
		out.applyDefaults()
		return out, nil
	}

	v := viper.New()
	v.SetConfigFile(confPath)
	if err := v.ReadInConfig(); err != nil {
		return out, fmt.Errorf("failed to read configuration file: %w", err)
	}
	if err := v.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}
	out.applyDefaults()

	v.OnConfigChange(func(e fsnotify.Event) {
		var next AppConfig
		if err := v.Unmarshal(&next); err != nil {
			log.Warnw("reload configuration", "path", e.Name, "error", err)
			return
		}
		next.applyDefaults()
		reload(next)
	})
	v.WatchConfig()

	log.Infow("config file loaded", "path", confPath)
	return out, nil
}

func reload(next AppConfig) {
	mu.Lock()
	prev := cfg
	cfg.Log = next.Log
	mu.Unlock()

	if reflect.DeepEqual(prev.Log, next.Log) {
		return
	}
	if _, err := log.NewLog(&next.Log); err != nil {
		log.Warnw("apply reloaded log config", "error", err)
		return
	}
	log.Infow("log config reloaded", "level", next.Log.Level, "output", next.Log.Output)
}

func (c *AppConfig) applyDefaults() {
	def := log.SetDefaults()
	if c.Log.Output == "" {
		c.Log.Output = def.Output
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Level
	}
	if c.Log.Path == "" {
		c.Log.Path = def.Path
	}
	if c.Log.Filename == "" {
		c.Log.Filename = def.Filename
	}
	c.Store.SetDefaults()
	c.Queue.SetDefaults()
	c.WaitNotify.SetDefaults()
	c.Concurrency.SetDefaults()
	c.Engine.SetDefaults()
	c.Metrics.SetDefaults()
	c.Trace.SetDefaults()
	c.Pprof.SetDefaults()
	if c.Cron.LockTTL == 0 {
		c.Cron.LockTTL = 30 * time.Second
	}
	if c.Cron.Location == "" {
		c.Cron.Location = "UTC"
	}
}
