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
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
)

// Tiered reads through a local cache into a remote one. Local entries live for
// LocalTTLRatio of the remote ttl so a stale local copy ages out first.
type Tiered struct {
	local         Cache
	remote        Cache
	localTTLRatio float64
}

func NewTiered(local, remote Cache, localTTLRatio float64) *Tiered {
	if localTTLRatio <= 0 || localTTLRatio > 1 {
		localTTLRatio = 0.5
	}
	return &Tiered{local: local, remote: remote, localTTLRatio: localTTLRatio}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := t.local.Get(ctx, key); err == nil {
		return b, nil
	}
	if t.remote == nil {
		return nil, ErrMiss
	}
	b, err := t.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	// remote ttl is unknown here; a short local copy is enough to absorb bursts
	_ = t.local.Set(ctx, key, b, time.Duration(float64(time.Minute)*t.localTTLRatio))
	return b, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.local.Set(ctx, key, value, time.Duration(float64(ttl)*t.localTTLRatio))
	if t.remote == nil {
		return nil
	}
	return t.remote.Set(ctx, key, value, ttl)
}

func (t *Tiered) Del(ctx context.Context, keys ...string) error {
	_ = t.local.Del(ctx, keys...)
	if t.remote == nil {
		return nil
	}
	if err := t.remote.Del(ctx, keys...); err != nil && !errors.Is(err, ErrMiss) {
		log.Warnw("remote cache delete failed", "keys", keys, "error", err)
		return err
	}
	return nil
}
