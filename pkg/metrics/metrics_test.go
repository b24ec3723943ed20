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
	"errors"
	"testing"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestration_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewOrchestration(reg)

	o.ObserveEvent("SPAWN_CHILD", time.Now(), nil)
	o.ObserveEvent("SPAWN_CHILD", time.Now(), errors.New("x"))
	o.StatusWritten("RUNNING", true)
	o.StatusWritten("RUNNING", false)
	o.ChildrenAdmitted(2, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.eventsTotal.WithLabelValues("SPAWN_CHILD", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.eventsTotal.WithLabelValues("SPAWN_CHILD", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.lostRaces))
	assert.Equal(t, 3.0, testutil.ToFloat64(o.childrenAdmitted.WithLabelValues("queued")))
}

func TestOrchestration_NilIsNoop(t *testing.T) {
	var o *Orchestration
	assert.NotPanics(t, func() {
		o.ObserveEvent("x", time.Now(), nil)
		o.StatusWritten("x", false)
		o.WaitRegistered("x")
		o.WaitFired("x")
		o.InitiationPublished(nil)
		o.ChildrenAdmitted(1, 1)
	})
}

type fakeInspector struct{}

func (fakeInspector) Queues() ([]string, error) { return []string{"default"}, nil }
func (fakeInspector) GetQueueInfo(q string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: q, Size: 4, Pending: 3, Active: 1}, nil
}

func TestQueueCollector_Collect(t *testing.T) {
	sink := gometrics.NewInmemSink(time.Minute, time.Minute)
	NewQueueCollector(fakeInspector{}, sink, 0).Collect()

	intervals := sink.Data()
	require.NotEmpty(t, intervals)
	gauge, ok := intervals[0].Gauges["asynq.queue.pending;queue=default"]
	require.True(t, ok)
	assert.Equal(t, float32(3), gauge.Value)
}
