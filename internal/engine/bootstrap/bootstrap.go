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
	"errors"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/internal/engine/config"
	"github.com/go-arcade/orchestrator/internal/engine/orchestration"
	"github.com/go-arcade/orchestrator/internal/engine/planexec"
	"github.com/go-arcade/orchestrator/internal/engine/processor"
	"github.com/go-arcade/orchestrator/internal/engine/stepexec"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/cron"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/go-arcade/orchestrator/pkg/pprof"
	"github.com/go-arcade/orchestrator/pkg/trace"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 15 * time.Second

// App is one orchestrator process: the event consumers, the step executor,
// the notification loop and the maintenance jobs.
type App struct {
	Engine    *orchestration.Engine
	PlanExecs *planexec.Service

	conf      *config.AppConfig
	broker    queue.Broker
	scheduler *cron.Scheduler
	metrics   *metrics.Server
	collector *metrics.QueueCollector
	pprof     *pprof.Server
	logger    *log.Logger
}

// InitAppFunc builds an App from a config file path.
type InitAppFunc func(ctx context.Context, configPath string) (*App, func(), error)

func NewApp(
	appConf *config.AppConfig,
	logger *log.Logger,
	engine *orchestration.Engine,
	planExecs *planexec.Service,
	bus *processor.Bus,
	dispatcher *processor.Dispatcher,
	executor *stepexec.Executor,
	broker queue.Broker,
	scheduler *cron.Scheduler,
	metricsServer *metrics.Server,
	collector *metrics.QueueCollector,
	pprofServer *pprof.Server,
) (*App, error) {
	bus.Subscribe(dispatcher)
	executor.Subscribe(broker)
	if err := engine.RegisterJobs(scheduler); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return &App{
		Engine:    engine,
		PlanExecs: planExecs,
		conf:      appConf,
		broker:    broker,
		scheduler: scheduler,
		metrics:   metricsServer,
		collector: collector,
		pprof:     pprofServer,
		logger:    logger,
	}, nil
}

// Run starts every component and blocks until ctx ends or one fails.
func (a *App) Run(ctx context.Context) error {
	if err := trace.Init(ctx, a.conf.Trace); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	if err := a.metrics.Start(); err != nil {
		return fmt.Errorf("start metrics: %w", err)
	}
	if err := a.broker.Start(); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	a.scheduler.Start()
	log.Infow("orchestrator started",
		"store", a.conf.Store.Backend,
		"queue", a.conf.Queue.Backend,
		"waitNotify", a.conf.WaitNotify.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Engine.Run(gctx) })
	g.Go(func() error { return a.pprof.Run(gctx) })
	if a.collector != nil {
		g.Go(func() error {
			a.collector.Run(gctx)
			return nil
		})
	}
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	err := errors.Join(
		runErr,
		a.scheduler.Stop(stopCtx),
		a.metrics.Stop(stopCtx),
		trace.Shutdown(stopCtx),
	)
	if a.logger != nil {
		_ = a.logger.Log.Sync()
	}
	log.Info("orchestrator stopped")
	return err
}

// Start runs the App in the background for in-process use. The returned
// function stops it and waits.
func (a *App) Start(ctx context.Context) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return func() error {
		cancel()
		return <-done
	}
}
