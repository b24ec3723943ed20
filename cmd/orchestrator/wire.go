//go:build wireinject
// +build wireinject

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

package main

import (
	"context"

	"github.com/go-arcade/orchestrator/internal/engine/bootstrap"
	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/config"
	"github.com/go-arcade/orchestrator/internal/engine/orchestration"
	"github.com/go-arcade/orchestrator/internal/engine/planexec"
	"github.com/go-arcade/orchestrator/internal/engine/processor"
	"github.com/go-arcade/orchestrator/internal/engine/publisher"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/stepexec"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/go-arcade/orchestrator/pkg/pprof"
	"github.com/google/wire"
)

func initApp(ctx context.Context, configPath string) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		config.ProviderSet,
		log.ProviderSet,
		repo.ProviderSet,
		waitnotify.ProviderSet,
		concurrency.ProviderSet,
		queue.ProviderSet,
		publisher.ProviderSet,
		processor.ProviderSet,
		planexec.ProviderSet,
		orchestration.ProviderSet,
		stepexec.ProviderSet,
		metrics.ProviderSet,
		pprof.ProviderSet,
		bootstrap.ProviderSet,
	))
}
