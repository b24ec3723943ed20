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

package inject

import (
	"context"
	"errors"
	"fmt"

	tracectx "github.com/go-arcade/orchestrator/pkg/trace/context"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var redisTracer = otel.Tracer("github.com/go-arcade/orchestrator/pkg/trace/inject/redis")

// RedisHook opens one client span per command or pipeline.
type RedisHook struct {
	WithArgs bool
}

var _ redis.Hook = (*RedisHook)(nil)

func (h *RedisHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := h.start(ctx, "redis."+cmd.Name(),
			attribute.String("db.operation", cmd.Name()))
		if h.WithArgs {
			span.SetAttributes(attribute.String("db.statement", cmd.String()))
		}
		err := next(ctx, cmd)
		finish(span, err)
		return err
	}
}

func (h *RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := h.start(ctx, "redis.pipeline",
			attribute.String("db.operation", "pipeline"),
			attribute.Int("db.redis.pipeline.commands", len(cmds)))
		err := next(ctx, cmds)
		spanErr := err
		failed := 0
		for _, cmd := range cmds {
			if e := cmd.Err(); e != nil && !errors.Is(e, redis.Nil) {
				failed++
			}
		}
		if spanErr == nil && failed > 0 {
			spanErr = fmt.Errorf("%d of %d pipelined commands failed", failed, len(cmds))
		}
		finish(span, spanErr)
		return err
	}
}

func (h *RedisHook) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = tracectx.GetContext()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracectx.ContextWithSpan(ctx)
	ctx, span := redisTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(append(attrs, attribute.String("db.system", "redis"))...)
	return ctx, span
}

func finish(span trace.Span, err error) {
	defer span.End()
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RegisterRedisHook installs the tracing hook on any client that accepts hooks.
func RegisterRedisHook(client redis.UniversalClient, withArgs bool) {
	client.AddHook(&RedisHook{WithArgs: withArgs})
}
