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
	"encoding/binary"
	"time"

	"github.com/VictoriaMetrics/fastcache"
)

const expiryHeader = 8

// FastCache is an in-process Cache. Expiry is stored as an 8 byte unix-nano
// prefix on each value and checked on read, so no sweeper goroutine is needed.
type FastCache struct {
	cache *fastcache.Cache
	now   func() time.Time
}

func NewFastCache(maxBytes int) *FastCache {
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}
	return &FastCache{cache: fastcache.New(maxBytes), now: time.Now}
}

func (fc *FastCache) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := fc.cache.HasGet(nil, []byte(key))
	if !ok || len(raw) < expiryHeader {
		return nil, ErrMiss
	}
	if exp := int64(binary.BigEndian.Uint64(raw[:expiryHeader])); exp != 0 && fc.now().UnixNano() > exp {
		fc.cache.Del([]byte(key))
		return nil, ErrMiss
	}
	return raw[expiryHeader:], nil
}

func (fc *FastCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = fc.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, expiryHeader+len(value))
	binary.BigEndian.PutUint64(buf, uint64(exp))
	copy(buf[expiryHeader:], value)
	fc.cache.Set([]byte(key), buf)
	return nil
}

func (fc *FastCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		fc.cache.Del([]byte(k))
	}
	return nil
}

// Reset drops every entry.
func (fc *FastCache) Reset() {
	fc.cache.Reset()
}

// Stats reports entry count and bytes in use.
func (fc *FastCache) Stats() (entries uint64, bytes uint64) {
	var s fastcache.Stats
	fc.cache.UpdateStats(&s)
	return s.EntriesCount, s.BytesSize
}
