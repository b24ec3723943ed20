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

package log

import (
	tracectx "github.com/go-arcade/orchestrator/pkg/trace/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// traceCore stamps trace_id and span_id of the goroutine's active span onto each entry.
type traceCore struct {
	zapcore.Core
}

func (c *traceCore) With(fields []zapcore.Field) zapcore.Core {
	return &traceCore{Core: c.Core.With(fields)}
}

func (c *traceCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *traceCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	ctx := tracectx.GetContext()
	if ctx == nil {
		return c.Core.Write(entry, fields)
	}

	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.TraceID().IsValid() || !spanCtx.SpanID().IsValid() {
		return c.Core.Write(entry, fields)
	}

	traceFields := []zapcore.Field{
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	}
	return c.Core.Write(entry, append(traceFields, fields...))
}

func wrapCoreWithTrace(core zapcore.Core) zapcore.Core {
	return &traceCore{Core: core}
}
