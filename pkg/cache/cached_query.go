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

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/orchestrator/pkg/log"
)

// CachedQuery memoizes a loader keyed by string, encoding values with sonic.
type CachedQuery[T any] struct {
	cache  Cache
	ttl    time.Duration
	prefix string
}

func NewCachedQuery[T any](c Cache, prefix string, ttl time.Duration) *CachedQuery[T] {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedQuery[T]{cache: c, ttl: ttl, prefix: prefix}
}

// Get returns the cached value for key or calls load and caches its result.
// Cache failures are logged and fall through to load.
func (q *CachedQuery[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	full := q.prefix + key
	if q.cache != nil {
		b, err := q.cache.Get(ctx, full)
		switch {
		case err == nil:
			var v T
			if uerr := sonic.Unmarshal(b, &v); uerr == nil {
				return v, nil
			} else {
				log.Warnw("discarding undecodable cache entry", "key", full, "error", uerr)
			}
		case !errors.Is(err, ErrMiss):
			log.Warnw("cache get failed", "key", full, "error", err)
		}
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", full, err)
	}
	if q.cache != nil {
		if b, merr := sonic.Marshal(v); merr == nil {
			if serr := q.cache.Set(ctx, full, b, q.ttl); serr != nil {
				log.Warnw("cache set failed", "key", full, "error", serr)
			}
		}
	}
	return v, nil
}

func (q *CachedQuery[T]) Invalidate(ctx context.Context, key string) error {
	if q.cache == nil {
		return nil
	}
	return q.cache.Del(ctx, q.prefix+key)
}
