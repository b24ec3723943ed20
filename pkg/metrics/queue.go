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

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	gometrics "github.com/hashicorp/go-metrics"
	gmprom "github.com/hashicorp/go-metrics/prometheus"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// NewPrometheusSink returns a go-metrics sink that publishes into reg.
func NewPrometheusSink(reg prometheus.Registerer) (gometrics.MetricSink, error) {
	sink, err := gmprom.NewPrometheusSinkFrom(gmprom.PrometheusOpts{
		Expiration: 5 * time.Minute,
		Registerer: reg,
	})
	if err != nil {
		return nil, fmt.Errorf("create prometheus sink: %w", err)
	}
	return sink, nil
}

// QueueInspector is the part of asynq.Inspector the collector reads.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueCollector polls asynq queue depth into a go-metrics sink.
type QueueCollector struct {
	inspector QueueInspector
	sink      gometrics.MetricSink
	interval  time.Duration
}

func NewQueueCollector(inspector QueueInspector, sink gometrics.MetricSink, interval time.Duration) *QueueCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &QueueCollector{inspector: inspector, sink: sink, interval: interval}
}

// Run polls until ctx ends.
func (c *QueueCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.Collect()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *QueueCollector) Collect() {
	queues, err := c.inspector.Queues()
	if err != nil {
		log.Warnw("list queues for metrics", "error", err)
		return
	}
	for _, q := range queues {
		info, err := c.inspector.GetQueueInfo(q)
		if err != nil {
			log.Warnw("read queue info", "queue", q, "error", err)
			continue
		}
		labels := []gometrics.Label{{Name: "queue", Value: q}}
		gauge := func(name string, v int) {
			c.sink.SetGaugeWithLabels([]string{"asynq", "queue", name}, float32(v), labels)
		}
		gauge("size", info.Size)
		gauge("pending", info.Pending)
		gauge("active", info.Active)
		gauge("scheduled", info.Scheduled)
		gauge("retry", info.Retry)
		gauge("archived", info.Archived)
		gauge("processed", info.Processed)
		gauge("failed", info.Failed)
	}
}
