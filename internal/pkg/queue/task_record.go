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
	"context"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"gorm.io/gorm"
)

const taskRecordTable = "orc_task_record"

// TaskRecordManager writes the lifecycle of every task to ClickHouse. Each
// state change is a new row; ReplacingMergeTree keeps the latest per task.
// A nil manager records nothing.
type TaskRecordManager struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewTaskRecordManager(clickHouse *gorm.DB) (*TaskRecordManager, error) {
	if clickHouse == nil {
		return nil, nil
	}
	m := &TaskRecordManager{db: clickHouse, timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.createTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("create task record table: %w", err)
	}
	return m, nil
}

func (m *TaskRecordManager) createTableIfNotExists(ctx context.Context) error {
	return m.db.WithContext(ctx).Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			task_id String,
			task_type LowCardinality(String),
			status LowCardinality(String),
			queue String,
			attempt Int32,
			payload_size Int64,
			duration_ms Nullable(Int64),
			error_message Nullable(String),
			event_time DateTime64(3)
		) ENGINE = ReplacingMergeTree(event_time)
		ORDER BY (task_id)
		TTL toDateTime(event_time) + INTERVAL 30 DAY
	`, taskRecordTable)).Error
}

type taskRecordRow struct {
	status   string
	queue    string
	duration *int64
	errMsg   *string
}

func (m *TaskRecordManager) insert(task *Task, row taskRecordRow) {
	if m == nil || m.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.db.WithContext(ctx).Exec(fmt.Sprintf(`
		INSERT INTO %s (task_id, task_type, status, queue, attempt, payload_size, duration_ms, error_message, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, taskRecordTable),
		task.ID, task.Type, row.status, row.queue, task.Attempt, len(task.Payload),
		row.duration, row.errMsg, time.Now().UTC(),
	).Error
	if err != nil {
		log.Warnw("failed to record task", "task_id", task.ID, "status", row.status, "error", err)
	}
}

func (m *TaskRecordManager) RecordTaskEnqueued(task *Task, queueName string) {
	m.insert(task, taskRecordRow{status: TaskRecordStatusPending, queue: queueName})
}

func (m *TaskRecordManager) RecordTaskStarted(task *Task) {
	m.insert(task, taskRecordRow{status: TaskRecordStatusRunning})
}

func (m *TaskRecordManager) RecordTaskCompleted(task *Task, took time.Duration) {
	ms := took.Milliseconds()
	m.insert(task, taskRecordRow{status: TaskRecordStatusCompleted, duration: &ms})
}

func (m *TaskRecordManager) RecordTaskFailed(task *Task, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.insert(task, taskRecordRow{status: TaskRecordStatusFailed, errMsg: &msg})
}
