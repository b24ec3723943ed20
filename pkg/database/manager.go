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

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/trace/inject"
	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// Manager owns the orchestrator's database handles.
type Manager interface {
	MySQL() *gorm.DB
	// ClickHouse returns nil when no ClickHouse is configured.
	ClickHouse() *gorm.DB
	Close() error
}

type manager struct {
	mysql      *gorm.DB
	clickHouse *gorm.DB
}

func (m *manager) MySQL() *gorm.DB      { return m.mysql }
func (m *manager) ClickHouse() *gorm.DB { return m.clickHouse }

func (m *manager) Close() error {
	var errs []error
	for name, db := range map[string]*gorm.DB{"mysql": m.mysql, "clickhouse": m.clickHouse} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, cerr))
			}
		}
	}
	return errors.Join(errs...)
}

// NewManager connects MySQL (with replicas when configured) and, if
// configured, ClickHouse.
func NewManager(ctx context.Context, cfg Conf) (Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &manager{}
	db, err := open(ctx, mysql.Open(cfg.MySQL.DSN()), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	if len(cfg.MySQL.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.MySQL.Replicas))
		for _, r := range cfg.MySQL.Replicas {
			replicas = append(replicas, mysql.Open(r.DSN()))
		}
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxOpenConns(cfg.MaxOpenConns).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetConnMaxLifetime(cfg.MaxLifetime).
			SetConnMaxIdleTime(cfg.MaxIdleTime))
		if err != nil {
			return nil, fmt.Errorf("register mysql replicas: %w", err)
		}
	}
	m.mysql = db
	log.Infow("mysql connected", "host", cfg.MySQL.Host, "replicas", len(cfg.MySQL.Replicas))

	if cfg.ClickHouse.Enabled() {
		ch, err := open(ctx, clickhouse.Open(cfg.ClickHouse.DSN()), cfg)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		m.clickHouse = ch
		log.Infow("clickhouse connected", "host", cfg.ClickHouse.Host)
	}
	return m, nil
}

func open(ctx context.Context, dialector gorm.Dialector, cfg Conf) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(cfg.LogSQL, cfg.SlowQuery),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, err
	}
	if cfg.Trace {
		if err := inject.RegisterGormPlugin(db, cfg.LogSQL, true); err != nil {
			log.Warnw("gorm tracing plugin not registered", "error", err)
		}
	}
	return db, nil
}

// ReadDB routes the statement to a replica when replicas are registered.
func ReadDB(db *gorm.DB) *gorm.DB {
	return db.Clauses(dbresolver.Read)
}

// WriteDB pins the statement to the primary.
func WriteDB(db *gorm.DB) *gorm.DB {
	return db.Clauses(dbresolver.Write)
}
