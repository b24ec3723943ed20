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

package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/config"
	"github.com/go-arcade/orchestrator/internal/engine/orchestration"
	"github.com/go-arcade/orchestrator/internal/engine/planexec"
	"github.com/go-arcade/orchestrator/internal/engine/processor"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/stepexec"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/cache"
	"github.com/go-arcade/orchestrator/pkg/cron"
	"github.com/go-arcade/orchestrator/pkg/database"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// ProvideDatabase connects MySQL and ClickHouse when a configured backend
// needs them and returns nil otherwise.
func ProvideDatabase(ctx context.Context, appConf *config.AppConfig) (database.Manager, func(), error) {
	if !appConf.NeedsDatabase() {
		return nil, func() {}, nil
	}
	m, err := database.NewManager(ctx, appConf.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return m, func() {
		if err := m.Close(); err != nil {
			log.Warnw("close database", "error", err)
		}
	}, nil
}

// ProvideRedis connects redis when a configured backend needs it and
// returns nil otherwise.
func ProvideRedis(ctx context.Context, appConf *config.AppConfig) (redis.UniversalClient, func(), error) {
	if !appConf.NeedsRedis() {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedis(ctx, appConf.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warnw("close redis", "error", err)
		}
	}, nil
}

func ProvideOrchestrationMetrics(server *metrics.Server) *metrics.Orchestration {
	return metrics.NewOrchestration(server.Registry())
}

// ProvideScheduler builds the maintenance scheduler, sharing ticks across
// replicas through redis when cron.lock is set.
func ProvideScheduler(appConf *config.AppConfig, client redis.UniversalClient, server *metrics.Server) (*cron.Scheduler, error) {
	loc, err := time.LoadLocation(appConf.Cron.Location)
	if err != nil {
		return nil, fmt.Errorf("cron location: %w", err)
	}
	opts := []cron.Option{
		cron.WithLocation(loc),
		cron.WithRecorder(metrics.NewCronRecorder(server.Registry())),
	}
	if appConf.Cron.Lock && client != nil {
		opts = append(opts, cron.WithLocker(cron.NewRedisLocker(client, "orchestrator:"), appConf.Cron.LockTTL))
	}
	return cron.New(opts...), nil
}

// ProvideQueueCollector returns nil unless the broker exposes queue state.
func ProvideQueueCollector(appConf *config.AppConfig, broker queue.Broker, server *metrics.Server) (*metrics.QueueCollector, error) {
	ab, ok := broker.(*queue.AsynqBroker)
	if !ok {
		return nil, nil
	}
	sink, err := metrics.NewPrometheusSink(server.Registry())
	if err != nil {
		return nil, err
	}
	return metrics.NewQueueCollector(ab.Inspector(), sink, appConf.Queue.MetricsInterval), nil
}

func ProvideEventSink(bus *processor.Bus) orchestration.EventSink {
	return bus
}

func ProvideProcessorDeps(
	repos *repo.Repositories,
	waits waitnotify.Registry,
	admission *concurrency.Controller,
	engine *orchestration.Engine,
	planExecs *planexec.Service,
	m *metrics.Orchestration,
) processor.Deps {
	return processor.Deps{
		Nodes:          repos.Nodes,
		Waits:          waits,
		Admission:      admission,
		Engine:         engine,
		PlanExecutions: planExecs,
		Metrics:        m,
	}
}

// ProvideExecutor runs leaf steps in process, reporting through bus.
func ProvideExecutor(plans orchestration.PlanSource, bus *processor.Bus, runner stepexec.Runner) *stepexec.Executor {
	return stepexec.NewExecutor(plans, bus, runner)
}
