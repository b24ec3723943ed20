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
	"strings"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/safe"
)

// RocketMQBroker publishes each task type to its own topic. A failed task is
// left to RocketMQ's reconsume schedule until MaxRetry, after which the broker
// moves it to the group's dead letter queue.
type RocketMQBroker struct {
	cfg      Conf
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
	handlers map[string]Handler
}

func rocketMQCredentials(c RocketMQConf) *primitive.Credentials {
	if c.AccessKey == "" || c.SecretKey == "" {
		return nil
	}
	return &primitive.Credentials{AccessKey: c.AccessKey, SecretKey: c.SecretKey}
}

func NewRocketMQBroker(cfg Conf) (*RocketMQBroker, error) {
	cfg.SetDefaults()
	rc := cfg.RocketMQ
	if len(rc.NameServers) == 0 {
		return nil, fmt.Errorf("rocketmq: no name servers configured")
	}
	resolver := primitive.NewPassthroughResolver(rc.NameServers)
	creds := rocketMQCredentials(rc)

	producerOpts := []producer.Option{
		producer.WithNsResolver(resolver),
		producer.WithGroupName(rc.GroupID + "-producer"),
		producer.WithRetry(3),
	}
	if creds != nil {
		producerOpts = append(producerOpts, producer.WithCredentials(*creds))
	}
	p, err := rocketmq.NewProducer(producerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}

	consumerOpts := []consumer.Option{
		consumer.WithNsResolver(resolver),
		consumer.WithGroupName(rc.GroupID),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeTimeout(cfg.Timeout),
		consumer.WithMaxReconsumeTimes(int32(cfg.MaxRetry)),
	}
	if creds != nil {
		consumerOpts = append(consumerOpts, consumer.WithCredentials(*creds))
	}
	c, err := rocketmq.NewPushConsumer(consumerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq consumer: %w", err)
	}
	return &RocketMQBroker{
		cfg:      cfg,
		producer: p,
		consumer: c,
		handlers: make(map[string]Handler),
	}, nil
}

// topicName maps a task type onto the characters RocketMQ allows in a topic.
func topicName(prefix, taskType string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, taskType)
	return prefix + "_" + name
}

func (b *RocketMQBroker) Enqueue(ctx context.Context, taskType, taskID string, payload []byte) error {
	msg := primitive.NewMessage(topicName(b.cfg.RocketMQ.TopicPrefix, taskType), payload)
	msg.WithKeys([]string{taskID})
	msg.WithTag(taskType)
	res, err := b.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish %s task %s: %w", taskType, taskID, err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("publish %s task %s: status %v", taskType, taskID, res.Status)
	}
	return nil
}

func (b *RocketMQBroker) RegisterHandler(taskType string, handler Handler) {
	b.handlers[taskType] = handler
}

// taskFromMessage rebuilds the task of one delivery. Attempt follows the
// broker's reconsume count.
func taskFromMessage(taskType string, msg *primitive.MessageExt) *Task {
	id := msg.GetKeys()
	if id == "" {
		id = msg.MsgId
	}
	return &Task{ID: id, Type: taskType, Payload: msg.Body, Attempt: int(msg.ReconsumeTimes)}
}

func (b *RocketMQBroker) Start() error {
	for taskType, handler := range b.handlers {
		topic := topicName(b.cfg.RocketMQ.TopicPrefix, taskType)
		err := b.consumer.Subscribe(topic, consumer.MessageSelector{}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
			for _, msg := range msgs {
				task := taskFromMessage(taskType, msg)
				tctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
				err := safe.Call(func() error { return handler.HandleTask(tctx, task) })
				cancel()
				if err != nil {
					log.Warnw("task failed, reconsuming later", "task_id", task.ID, "task_type", taskType, "attempt", task.Attempt, "error", err)
					return consumer.ConsumeRetryLater, err
				}
			}
			return consumer.ConsumeSuccess, nil
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	if err := b.producer.Start(); err != nil {
		return fmt.Errorf("start rocketmq producer: %w", err)
	}
	if err := b.consumer.Start(); err != nil {
		return fmt.Errorf("start rocketmq consumer: %w", err)
	}
	log.Infow("rocketmq broker started", "group", b.cfg.RocketMQ.GroupID, "topics", len(b.handlers))
	return nil
}

func (b *RocketMQBroker) Shutdown() {
	if err := b.consumer.Shutdown(); err != nil {
		log.Warnw("shutdown rocketmq consumer", "error", err)
	}
	if err := b.producer.Shutdown(); err != nil {
		log.Warnw("shutdown rocketmq producer", "error", err)
	}
	log.Info("rocketmq broker stopped")
}
