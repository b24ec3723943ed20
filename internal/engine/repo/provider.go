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

package repo

import (
	"errors"
	"fmt"

	"github.com/go-arcade/orchestrator/pkg/database"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/google/wire"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
)

// Conf is the store section of the orchestrator config.
type Conf struct {
	Backend     string `mapstructure:"backend"`
	AutoMigrate bool   `mapstructure:"autoMigrate"`
}

func (c *Conf) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
}

var ProviderSet = wire.NewSet(ProvideRepositories)

// ProvideRepositories selects the store backend. db may be nil for the
// memory backend.
func ProvideRepositories(cfg Conf, db database.Manager) (*Repositories, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryRepositories(), nil
	case BackendMySQL:
		if db == nil {
			return nil, errors.New("mysql store requires a database connection")
		}
		if cfg.AutoMigrate {
			if err := AutoMigrate(db.MySQL()); err != nil {
				return nil, fmt.Errorf("migrate store: %w", err)
			}
			log.Infow("store tables migrated")
		}
		return NewGormRepositories(db.MySQL()), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
