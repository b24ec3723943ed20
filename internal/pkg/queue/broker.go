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

// Package queue carries engine events over an at-least-once task transport.
package queue

import (
	"context"
	"errors"
	"time"
)

var ErrBrokerClosed = errors.New("broker closed")

// Task is one delivery of an enqueued payload.
type Task struct {
	ID      string
	Type    string
	Payload []byte
	// Attempt counts prior failed deliveries.
	Attempt int
}

type Handler interface {
	HandleTask(ctx context.Context, task *Task) error
}

type HandlerFunc func(ctx context.Context, task *Task) error

func (f HandlerFunc) HandleTask(ctx context.Context, task *Task) error {
	return f(ctx, task)
}

// Broker is an at-least-once task transport. Enqueueing a task id that is
// still known to the broker is a no-op.
type Broker interface {
	Enqueue(ctx context.Context, taskType, taskID string, payload []byte) error
	RegisterHandler(taskType string, handler Handler)
	Start() error
	Shutdown()
}

const (
	Critical = "critical"
	Default  = "default"
	Low      = "low"
)

const (
	BackendMemory   = "memory"
	BackendAsynq    = "asynq"
	BackendRabbitMQ = "rabbitmq"
	BackendRocketMQ = "rocketmq"
)

const (
	TaskRecordStatusPending   = "pending"
	TaskRecordStatusRunning   = "running"
	TaskRecordStatusCompleted = "completed"
	TaskRecordStatusFailed    = "failed"
)

type RabbitMQConf struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Exchange      string `mapstructure:"exchange"`
	QueuePrefix   string `mapstructure:"queuePrefix"`
	PrefetchCount int    `mapstructure:"prefetchCount"`
}

type RocketMQConf struct {
	NameServers []string `mapstructure:"nameServers"`
	GroupID     string   `mapstructure:"groupId"`
	TopicPrefix string   `mapstructure:"topicPrefix"`
	AccessKey   string   `mapstructure:"accessKey"`
	SecretKey   string   `mapstructure:"secretKey"`
}

// Conf is the queue section of the orchestrator config.
type Conf struct {
	Backend        string         `mapstructure:"backend"`
	Concurrency    int            `mapstructure:"concurrency"`
	StrictPriority bool           `mapstructure:"strictPriority"`
	Queues         map[string]int `mapstructure:"queues"`
	// Routes maps a task type to the queue it is enqueued on.
	Routes          map[string]string `mapstructure:"routes"`
	LogLevel        string            `mapstructure:"logLevel"`
	MaxRetry        int               `mapstructure:"maxRetry"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	Retention       time.Duration     `mapstructure:"retention"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdownTimeout"`
	RecordTasks     bool              `mapstructure:"recordTasks"`
	MetricsInterval time.Duration     `mapstructure:"metricsInterval"`
	RabbitMQ        RabbitMQConf      `mapstructure:"rabbitmq"`
	RocketMQ        RocketMQConf      `mapstructure:"rocketmq"`
}

func (c *Conf) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if len(c.Queues) == 0 {
		c.Queues = map[string]int{Critical: 6, Default: 3, Low: 1}
	}
	if c.Routes == nil {
		c.Routes = map[string]string{}
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Retention == 0 {
		c.Retention = time.Hour
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "orchestrator"
	}
	if c.RabbitMQ.QueuePrefix == "" {
		c.RabbitMQ.QueuePrefix = "orchestrator"
	}
	if c.RabbitMQ.PrefetchCount <= 0 {
		c.RabbitMQ.PrefetchCount = c.Concurrency
	}
	if c.RocketMQ.GroupID == "" {
		c.RocketMQ.GroupID = "orchestrator"
	}
	if c.RocketMQ.TopicPrefix == "" {
		c.RocketMQ.TopicPrefix = "orchestrator"
	}
}

// QueueFor returns the queue taskType is routed to.
func (c *Conf) QueueFor(taskType string) string {
	if q, ok := c.Routes[taskType]; ok && q != "" {
		return q
	}
	return Default
}
