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
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/orchestrator/internal/engine/model"
	"github.com/go-arcade/orchestrator/pkg/id"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/safe"
	"github.com/redis/go-redis/v9"
)

// Every key shares one hash tag so the scripts stay on a single cluster slot.
const keyPrefix = "{orchestrator}:wn:"

func waitKey(waitID string) string    { return keyPrefix + "wait:" + waitID }
func pendingKey(waitID string) string { return keyPrefix + "pending:" + waitID }
func respKey(corrID string) string    { return keyPrefix + "resp:" + corrID }
func byKeyKey(corrID string) string   { return keyPrefix + "bykey:" + corrID }
func firedListKey() string            { return keyPrefix + "fired" }

// KEYS: wait, pending, fired list, resp:1..n, bykey:1..n
// ARGV: waitID, callback, keys, n, retention, id:1..n
var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local n = tonumber(ARGV[4])
redis.call('HSET', KEYS[1], 'cb', ARGV[2], 'keys', ARGV[3])
local pending = 0
for i = 1, n do
	if redis.call('EXISTS', KEYS[3 + i]) == 0 then
		redis.call('SADD', KEYS[2], ARGV[5 + i])
		redis.call('SADD', KEYS[3 + n + i], ARGV[1])
		pending = pending + 1
	end
end
if pending == 0 then
	redis.call('HSET', KEYS[1], 'fired', '1')
	redis.call('EXPIRE', KEYS[1], ARGV[5])
	redis.call('LPUSH', KEYS[3], ARGV[1])
	return 2
end
return 1
`)

// KEYS: resp, bykey, fired list
// ARGV: payload, retention, correlation id, key prefix
var resolveScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2]) then
	return -1
end
local waits = redis.call('SMEMBERS', KEYS[2])
redis.call('DEL', KEYS[2])
local fired = 0
for _, w in ipairs(waits) do
	local pending = ARGV[4] .. 'pending:' .. w
	if redis.call('SREM', pending, ARGV[3]) == 1 and redis.call('SCARD', pending) == 0 then
		local wk = ARGV[4] .. 'wait:' .. w
		if redis.call('HSETNX', wk, 'fired', '1') == 1 then
			redis.call('EXPIRE', wk, ARGV[2])
			redis.call('LPUSH', KEYS[3], w)
			fired = fired + 1
		end
	end
end
return fired
`)

// RedisRegistry shares waits between engine replicas. Fired wait ids go to a
// list; each is popped by exactly one replica and delivered on its channel.
type RedisRegistry struct {
	client redis.UniversalClient
	cfg    Conf
	out    chan Notification
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewRedisRegistry(client redis.UniversalClient, cfg Conf) *RedisRegistry {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisRegistry{
		client: client,
		cfg:    cfg,
		out:    make(chan Notification, cfg.Buffer),
		cancel: cancel,
	}
	r.wg.Add(1)
	safe.Go(func() {
		defer r.wg.Done()
		defer close(r.out)
		r.consume(ctx)
	})
	return r
}

func (r *RedisRegistry) retentionSeconds() string {
	secs := int64(r.cfg.Retention / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func (r *RedisRegistry) WaitForAll(ctx context.Context, correlationIDs []string, cb Callback, opts ...WaitOption) (string, error) {
	ids := dedupe(correlationIDs)
	if len(ids) == 0 {
		return "", ErrNoCorrelationIDs
	}
	o := waitOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.waitID == "" {
		o.waitID = id.Xid()
	}

	cbJSON, err := sonic.MarshalString(cb)
	if err != nil {
		return "", fmt.Errorf("encode callback: %w", err)
	}
	idsJSON, err := sonic.MarshalString(ids)
	if err != nil {
		return "", fmt.Errorf("encode correlation ids: %w", err)
	}

	n := len(ids)
	keys := make([]string, 0, 3+2*n)
	keys = append(keys, waitKey(o.waitID), pendingKey(o.waitID), firedListKey())
	for _, c := range ids {
		keys = append(keys, respKey(c))
	}
	for _, c := range ids {
		keys = append(keys, byKeyKey(c))
	}
	args := make([]any, 0, 5+n)
	args = append(args, o.waitID, cbJSON, idsJSON, n, r.retentionSeconds())
	for _, c := range ids {
		args = append(args, c)
	}

	if err := registerScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return "", fmt.Errorf("register wait %s: %w", o.waitID, err)
	}
	return o.waitID, nil
}

func (r *RedisRegistry) Resolve(ctx context.Context, correlationID string, payload model.ResponseData) error {
	body, err := sonic.MarshalString(payload)
	if err != nil {
		return fmt.Errorf("encode response %s: %w", correlationID, err)
	}
	keys := []string{respKey(correlationID), byKeyKey(correlationID), firedListKey()}
	res, err := resolveScript.Run(ctx, r.client, keys, body, r.retentionSeconds(), correlationID, keyPrefix).Int()
	if err != nil {
		return fmt.Errorf("resolve %s: %w", correlationID, err)
	}
	if res < 0 {
		log.Debugw("correlation id already resolved", "correlation_id", correlationID)
	}
	return nil
}

func (r *RedisRegistry) consume(ctx context.Context) {
	for {
		res, err := r.client.BRPop(ctx, r.cfg.PollTimeout, firedListKey()).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, redis.Nil) {
				log.Warnw("poll fired waits", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			continue
		}
		// BRPOP replies with [list, value]
		waitID := res[1]
		n, err := r.load(ctx, waitID)
		if err != nil {
			log.Errorw("load fired wait", "wait_id", waitID, "error", err)
			continue
		}
		select {
		case r.out <- n:
		case <-ctx.Done():
			log.Warnw("registry closed before delivering wait", "wait_id", waitID)
			return
		}
	}
}

func (r *RedisRegistry) load(ctx context.Context, waitID string) (Notification, error) {
	fields, err := r.client.HMGet(ctx, waitKey(waitID), "cb", "keys").Result()
	if err != nil {
		return Notification{}, err
	}
	cbJSON, _ := fields[0].(string)
	idsJSON, _ := fields[1].(string)
	if cbJSON == "" || idsJSON == "" {
		return Notification{}, fmt.Errorf("wait %s expired before delivery", waitID)
	}

	n := Notification{WaitID: waitID}
	if err := sonic.UnmarshalString(cbJSON, &n.Callback); err != nil {
		return Notification{}, fmt.Errorf("decode callback: %w", err)
	}
	var ids []string
	if err := sonic.UnmarshalString(idsJSON, &ids); err != nil {
		return Notification{}, fmt.Errorf("decode correlation ids: %w", err)
	}

	keys := make([]string, len(ids))
	for i, c := range ids {
		keys[i] = respKey(c)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Notification{}, err
	}
	n.Responses = make(map[string]model.ResponseData, len(ids))
	for i, c := range ids {
		s, ok := vals[i].(string)
		if !ok {
			log.Warnw("response missing for fired wait", "wait_id", waitID, "correlation_id", c)
			continue
		}
		var rd model.ResponseData
		if err := sonic.UnmarshalString(s, &rd); err != nil {
			return Notification{}, fmt.Errorf("decode response %s: %w", c, err)
		}
		n.Responses[c] = rd
	}
	return n, nil
}

func (r *RedisRegistry) Notifications() <-chan Notification {
	return r.out
}

func (r *RedisRegistry) Close() error {
	r.once.Do(r.cancel)
	r.wg.Wait()
	return nil
}
