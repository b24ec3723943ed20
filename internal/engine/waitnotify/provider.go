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
	"errors"
	"fmt"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

var ProviderSet = wire.NewSet(ProvideRegistry)

// ProvideRegistry selects the registry backend. client may be nil for the
// memory backend.
func ProvideRegistry(cfg Conf, client redis.UniversalClient) (Registry, func(), error) {
	cfg.SetDefaults()
	var r Registry
	switch cfg.Backend {
	case BackendMemory:
		r = NewMemoryRegistry(cfg)
	case BackendRedis:
		if client == nil {
			return nil, nil, errors.New("redis wait registry requires a redis client")
		}
		r = NewRedisRegistry(client, cfg)
	default:
		return nil, nil, fmt.Errorf("unknown wait registry backend %q", cfg.Backend)
	}
	cleanup := func() {
		if err := r.Close(); err != nil {
			log.Warnw("close wait registry", "error", err)
		}
	}
	return r, cleanup, nil
}
