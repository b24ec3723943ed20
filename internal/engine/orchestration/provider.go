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

package orchestration

import (
	"github.com/go-arcade/orchestrator/internal/engine/repo"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

var ProviderSet = wire.NewSet(
	NewEngine,
	ProvidePlanSource,
	DefaultContinuations,
)

// ProvidePlanSource shares cached plan nodes through redis when a client is
// configured.
func ProvidePlanSource(repos *repo.Repositories, cfg Conf, client redis.UniversalClient) PlanSource {
	cfg.SetDefaults()
	if client == nil {
		return NewCachedPlanSource(repos.Plans, cfg.PlanCacheBytes)
	}
	return NewSharedPlanSource(repos.Plans, cfg.PlanCacheBytes, client)
}
