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
	"strings"
	"time"

	tracectx "github.com/go-arcade/orchestrator/pkg/trace/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type gormCtxKey int

const (
	gormSpanKey gormCtxKey = iota
	gormStartKey
)

var gormTracer = otel.Tracer("github.com/go-arcade/orchestrator/pkg/trace/inject/gorm")

// GormPlugin opens one client span per gorm statement.
type GormPlugin struct {
	WithQuery bool
	WithRows  bool
}

func (p *GormPlugin) Name() string { return "otel-tracing" }

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("create")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("query")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("update")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("delete")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("raw")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after)
}

func (p *GormPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement == nil {
			return
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = tracectx.GetContext()
		}
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = tracectx.ContextWithSpan(ctx)

		ctx, span := gormTracer.Start(ctx, "gorm."+operation, trace.WithSpanKind(trace.SpanKindClient))
		attrs := []attribute.KeyValue{
			attribute.String("db.system", "mysql"),
			attribute.String("db.operation", operation),
		}
		if db.Statement.Table != "" {
			attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
		}
		span.SetAttributes(attrs...)

		ctx = context.WithValue(ctx, gormSpanKey, span)
		db.Statement.Context = context.WithValue(ctx, gormStartKey, time.Now())
	}
}

func (p *GormPlugin) after(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span, ok := db.Statement.Context.Value(gormSpanKey).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if start, ok := db.Statement.Context.Value(gormStartKey).(time.Time); ok {
		span.SetAttributes(attribute.Int64("db.duration_ms", time.Since(start).Milliseconds()))
	}
	if sql := strings.TrimSpace(db.Statement.SQL.String()); p.WithQuery && sql != "" {
		span.SetAttributes(attribute.String("db.statement", sql))
	}
	if p.WithRows {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if err := db.Error; err != nil && err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RegisterGormPlugin installs the tracing plugin on db.
func RegisterGormPlugin(db *gorm.DB, withQuery, withRows bool) error {
	return db.Use(&GormPlugin{WithQuery: withQuery, WithRows: withRows})
}
