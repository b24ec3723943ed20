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
	"errors"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// AsynqBroker runs tasks on redis through asynq. Queues are weighted and a
// task id is rejected by redis while the task is retained.
type AsynqBroker struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	cfg      Conf
	records  *TaskRecordManager
	redisOpt asynq.RedisConnOpt
}

func NewAsynqBroker(cfg Conf, redisClient redis.UniversalClient, records *TaskRecordManager) (*AsynqBroker, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	cfg.SetDefaults()
	redisOpt := &redisConnOptWrapper{client: redisClient}

	var logLevel asynq.LogLevel
	if cfg.LogLevel == "" {
		logLevel = asynq.InfoLevel
	} else if err := logLevel.Set(cfg.LogLevel); err != nil {
		log.Warnw("invalid asynq log level, using info", "logLevel", cfg.LogLevel, "error", err)
		logLevel = asynq.InfoLevel
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		StrictPriority:  cfg.StrictPriority,
		Queues:          cfg.Queues,
		Logger:          newAsynqLogger(),
		LogLevel:        logLevel,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	b := &AsynqBroker{
		client:   asynq.NewClient(redisOpt),
		server:   server,
		mux:      asynq.NewServeMux(),
		cfg:      cfg,
		records:  records,
		redisOpt: redisOpt,
	}
	log.Infow("asynq broker created", "concurrency", cfg.Concurrency, "queues", cfg.Queues)
	return b, nil
}

func (b *AsynqBroker) Enqueue(ctx context.Context, taskType, taskID string, payload []byte) error {
	queueName := b.cfg.QueueFor(taskType)
	task := asynq.NewTask(taskType, payload)
	info, err := b.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(taskID),
		asynq.MaxRetry(b.cfg.MaxRetry),
		asynq.Timeout(b.cfg.Timeout),
		asynq.Retention(b.cfg.Retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Debugw("task already enqueued", "task_id", taskID, "task_type", taskType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s task %s: %w", taskType, taskID, err)
	}
	b.records.RecordTaskEnqueued(&Task{ID: taskID, Type: taskType, Payload: payload}, queueName)
	log.Debugw("task enqueued", "task_id", taskID, "task_type", taskType, "queue", info.Queue)
	return nil
}

func (b *AsynqBroker) RegisterHandler(taskType string, handler Handler) {
	b.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		attempt, _ := asynq.GetRetryCount(ctx)
		task := &Task{ID: taskID, Type: t.Type(), Payload: t.Payload(), Attempt: attempt}

		b.records.RecordTaskStarted(task)
		began := time.Now()
		if err := handler.HandleTask(ctx, task); err != nil {
			b.records.RecordTaskFailed(task, err)
			return err
		}
		b.records.RecordTaskCompleted(task, time.Since(began))
		return nil
	})
	log.Infow("task handler registered", "task_type", taskType)
}

// Start returns once the server is processing; it does not block.
func (b *AsynqBroker) Start() error {
	log.Info("starting asynq broker")
	return b.server.Start(b.mux)
}

func (b *AsynqBroker) Shutdown() {
	log.Info("shutting down asynq broker")
	b.server.Shutdown()
	if err := b.client.Close(); err != nil {
		log.Warnw("error closing asynq client", "error", err)
	}
}

// Inspector reads queue state, for metrics.
func (b *AsynqBroker) Inspector() *asynq.Inspector {
	return asynq.NewInspector(b.redisOpt)
}

// redisConnOptWrapper lets asynq reuse an existing redis client.
type redisConnOptWrapper struct {
	client redis.UniversalClient
}

func (r *redisConnOptWrapper) MakeRedisClient() interface{} {
	return r.client
}
