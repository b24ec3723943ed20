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
	"net/url"
	"sync"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/safe"
	amqp "github.com/rabbitmq/amqp091-go"
)

const attemptHeader = "x-orchestrator-attempt"

// RabbitMQBroker publishes tasks to a durable topic exchange keyed by task
// type. Each task type is consumed from its own durable queue with manual
// acks; a failed task is republished with its attempt count until MaxRetry.
type RabbitMQBroker struct {
	cfg      Conf
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pub      *amqp.Channel
	handlers map[string]Handler
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func dialURL(c RabbitMQConf) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.User == nil && c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String(), nil
}

func NewRabbitMQBroker(cfg Conf) (*RabbitMQBroker, error) {
	cfg.SetDefaults()
	addr, err := dialURL(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := pub.ExchangeDeclare(cfg.RabbitMQ.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RabbitMQBroker{
		cfg:      cfg,
		conn:     conn,
		pub:      pub,
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (b *RabbitMQBroker) queueName(taskType string) string {
	return b.cfg.RabbitMQ.QueuePrefix + "." + taskType
}

func (b *RabbitMQBroker) publish(ctx context.Context, taskType, taskID string, payload []byte, attempt int) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.pub.PublishWithContext(ctx, b.cfg.RabbitMQ.Exchange, taskType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		MessageId:    taskID,
		Type:         taskType,
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

func (b *RabbitMQBroker) Enqueue(ctx context.Context, taskType, taskID string, payload []byte) error {
	if err := b.publish(ctx, taskType, taskID, payload, 0); err != nil {
		return fmt.Errorf("publish %s task %s: %w", taskType, taskID, err)
	}
	return nil
}

func (b *RabbitMQBroker) RegisterHandler(taskType string, handler Handler) {
	b.handlers[taskType] = handler
}

func (b *RabbitMQBroker) Start() error {
	for taskType, handler := range b.handlers {
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		if err := ch.Qos(b.cfg.RabbitMQ.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		q, err := ch.QueueDeclare(b.queueName(taskType), true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queueName(taskType), err)
		}
		if err := ch.QueueBind(q.Name, taskType, b.cfg.RabbitMQ.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.Name, err)
		}
		deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", q.Name, err)
		}
		for i := 0; i < b.cfg.Concurrency; i++ {
			b.wg.Add(1)
			safe.Go(func() {
				defer b.wg.Done()
				b.consume(taskType, handler, deliveries)
			})
		}
		log.Infow("rabbitmq consumer started", "queue", q.Name, "workers", b.cfg.Concurrency)
	}
	return nil
}

func attemptOf(d amqp.Delivery) int {
	switch v := d.Headers[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (b *RabbitMQBroker) consume(taskType string, handler Handler, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			task := &Task{ID: d.MessageId, Type: taskType, Payload: d.Body, Attempt: attemptOf(d)}
			ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Timeout)
			err := safe.Call(func() error { return handler.HandleTask(ctx, task) })
			cancel()
			if err == nil {
				_ = d.Ack(false)
				continue
			}
			if task.Attempt+1 > b.cfg.MaxRetry {
				log.Errorw("task dropped after retries", "task_id", task.ID, "task_type", taskType, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			if perr := b.publish(b.ctx, taskType, task.ID, task.Payload, task.Attempt+1); perr != nil {
				log.Warnw("republish failed task", "task_id", task.ID, "error", perr)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (b *RabbitMQBroker) Shutdown() {
	b.cancel()
	b.wg.Wait()
	if err := b.conn.Close(); err != nil {
		log.Warnw("close rabbitmq connection", "error", err)
	}
	log.Info("rabbitmq broker stopped")
}
