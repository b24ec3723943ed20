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
	"github.com/go-arcade/orchestrator/internal/engine/concurrency"
	"github.com/go-arcade/orchestrator/internal/engine/orchestration"
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/go-arcade/orchestrator/internal/engine/waitnotify"
	"github.com/go-arcade/orchestrator/internal/pkg/queue"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/metrics"
	"github.com/go-arcade/orchestrator/pkg/pprof"
	"github.com/go-arcade/orchestrator/pkg/trace"
	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(
	ProvideConf,
	ProvideLogConfig,
	ProvideStoreConfig,
	ProvideQueueConfig,
	ProvideWaitNotifyConfig,
	ProvideConcurrencyConfig,
	ProvideEngineConfig,
	ProvideMetricsConfig,
	ProvideTraceConfig,
	ProvidePprofConfig,
)

func ProvideConf(configPath string) *AppConfig {
	c := NewConf(configPath)
	return &c
}

func ProvideLogConfig(appConf *AppConfig) *log.Conf {
	return &appConf.Log
}

func ProvideStoreConfig(appConf *AppConfig) repo.Conf {
	return appConf.Store
}

func ProvideQueueConfig(appConf *AppConfig) queue.Conf {
	return appConf.Queue
}

func ProvideWaitNotifyConfig(appConf *AppConfig) waitnotify.Conf {
	return appConf.WaitNotify
}

func ProvideConcurrencyConfig(appConf *AppConfig) concurrency.Conf {
	return appConf.Concurrency
}

func ProvideEngineConfig(appConf *AppConfig) orchestration.Conf {
	return appConf.Engine
}

func ProvideMetricsConfig(appConf *AppConfig) metrics.Conf {
	return appConf.Metrics
}

func ProvideTraceConfig(appConf *AppConfig) trace.Conf {
	return appConf.Trace
}

func ProvidePprofConfig(appConf *AppConfig) pprof.Conf {
	return appConf.Pprof
}
