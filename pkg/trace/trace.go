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

package trace

import (
	"context"

	tracectx "github.com/go-arcade/orchestrator/pkg/trace/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/go-arcade/orchestrator"

// GoWithContext starts fn on a new goroutine carrying ctx and its span.
func GoWithContext(ctx context.Context, fn func(ctx context.Context)) {
	ctx = tracectx.ContextWithSpan(ctx)
	go tracectx.RunWithContext(ctx, fn)
}

// StartSpan starts a span and binds it to the calling goroutine so log lines
// emitted while it is open carry its ids. The returned func ends the span and
// records err when non-nil.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx = tracectx.ContextWithSpan(ctx)
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	prev := tracectx.GetContext()
	tracectx.SetContext(ctx)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if prev != nil {
			tracectx.SetContext(prev)
		} else {
			tracectx.ClearContext()
		}
	}
}
