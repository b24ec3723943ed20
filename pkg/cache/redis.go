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
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/trace/inject"
	"github.com/redis/go-redis/v9"
)

const (
	ModeSingle   = "single"
	ModeSentinel = "sentinel"
	ModeCluster  = "cluster"
)

// Redis describes how to reach the shared redis deployment.
type Redis struct {
	Mode             string        `mapstructure:"mode"`
	Address          string        `mapstructure:"address"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	PoolSize         int           `mapstructure:"poolSize"`
	UseTLS           bool          `mapstructure:"useTLS"`
	MasterName       string        `mapstructure:"masterName"`
	SentinelUsername string        `mapstructure:"sentinelUsername"`
	SentinelPassword string        `mapstructure:"sentinelPassword"`
	DialTimeout      time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout      time.Duration `mapstructure:"readTimeout"`
	WriteTimeout     time.Duration `mapstructure:"writeTimeout"`
	Trace            bool          `mapstructure:"trace"`
}

func (r *Redis) SetDefaults() {
	if r.Mode == "" {
		r.Mode = ModeSingle
	}
	if r.Address == "" {
		r.Address = "127.0.0.1:6379"
	}
	if r.PoolSize == 0 {
		r.PoolSize = 50
	}
	if r.DialTimeout == 0 {
		r.DialTimeout = 5 * time.Second
	}
	if r.ReadTimeout == 0 {
		r.ReadTimeout = 3 * time.Second
	}
	if r.WriteTimeout == 0 {
		r.WriteTimeout = 3 * time.Second
	}
}

// NewRedis builds a client for the configured mode and pings it.
func NewRedis(ctx context.Context, cfg Redis) (redis.UniversalClient, error) {
	cfg.SetDefaults()
	addrs := strings.Split(cfg.Address, ",")

	opts := &redis.UniversalOptions{
		Addrs:        addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var client redis.UniversalClient
	switch cfg.Mode {
	case ModeSingle:
		client = redis.NewClient(opts.Simple())
	case ModeSentinel:
		opts.MasterName = cfg.MasterName
		opts.SentinelUsername = cfg.SentinelUsername
		opts.SentinelPassword = cfg.SentinelPassword
		client = redis.NewFailoverClient(opts.Failover())
	case ModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	default:
		return nil, fmt.Errorf("unsupported redis mode %q", cfg.Mode)
	}

	if cfg.Trace {
		inject.RegisterRedisHook(client, false)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}
	log.Infow("redis connected", "mode", cfg.Mode, "address", cfg.Address)
	return client, nil
}

// RedisCache adapts a redis client to Cache.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.client.Del(ctx, full...).Err()
}
