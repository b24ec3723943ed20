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

package cron

import (
	"context"
	"time"

	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/redis/go-redis/v9"
)

// RedisLocker takes a short lease per tick with SET NX PX. Leases are never
// released early; the ttl should be shorter than the job interval.
type RedisLocker struct {
	client redis.UniversalClient
	owner  string
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, owner: id.Short(), prefix: prefix}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, l.owner, ttl).Result()
}
