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

package queue

import (
	"fmt"

	"github.com/go-arcade/orchestrator/pkg/database"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

var ProviderSet = wire.NewSet(
	ProvideTaskRecords,
	ProvideBroker,
)

// ProvideTaskRecords returns nil unless task recording is on and ClickHouse
// is configured.
func ProvideTaskRecords(cfg Conf, db database.Manager) (*TaskRecordManager, error) {
	if !cfg.RecordTasks || db == nil {
		return nil, nil
	}
	return NewTaskRecordManager(db.ClickHouse())
}

// ProvideBroker builds the configured backend. Handlers are registered by the
// caller before Start.
func ProvideBroker(cfg Conf, client redis.UniversalClient, records *TaskRecordManager) (Broker, func(), error) {
	cfg.SetDefaults()
	var (
		b   Broker
		err error
	)
	switch cfg.Backend {
	case BackendMemory:
		b = NewMemoryBroker(cfg)
	case BackendAsynq:
		b, err = NewAsynqBroker(cfg, client, records)
	case BackendRabbitMQ:
		b, err = NewRabbitMQBroker(cfg)
	case BackendRocketMQ:
		b, err = NewRocketMQBroker(cfg)
	default:
		err = fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, nil, err
	}
	return b, b.Shutdown, nil
}
