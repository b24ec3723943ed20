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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orchestrator"

// Orchestration carries the engine's counters. A nil *Orchestration is valid
// and records nothing, which keeps tests free of registry plumbing.
type Orchestration struct {
	eventsTotal      *prometheus.CounterVec
	eventDuration    *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	lostRaces        prometheus.Counter
	waitsRegistered  *prometheus.CounterVec
	waitsFired       *prometheus.CounterVec
	initiations      *prometheus.CounterVec
	childrenAdmitted *prometheus.CounterVec
}

func NewOrchestration(reg prometheus.Registerer) *Orchestration {
	o := &Orchestration{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "SDK response events handled, by kind and outcome.",
		}, []string{"kind", "result"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "event_duration_seconds",
			Help:    "Time spent handling one SDK response event.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "node_status_transitions_total",
			Help: "Node execution status writes, by target status and whether the guard held.",
		}, []string{"status", "guarded"}),
		lostRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "guarded_update_lost_total",
			Help: "Guarded status updates that found the node in a disallowed status.",
		}),
		waitsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "waits_registered_total",
			Help: "Rendezvous waits registered, by callback kind.",
		}, []string{"callback"}),
		waitsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "waits_fired_total",
			Help: "Rendezvous waits whose correlation ids all resolved.",
		}, []string{"callback"}),
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "initiations_published_total",
			Help: "Node initiation messages published, by outcome.",
		}, []string{"result"}),
		childrenAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "children_admitted_total",
			Help: "Children spawned by fan-out, split into started and queued.",
		}, []string{"disposition"}),
	}
	if reg != nil {
		reg.MustRegister(o.eventsTotal, o.eventDuration, o.transitions, o.lostRaces,
			o.waitsRegistered, o.waitsFired, o.initiations, o.childrenAdmitted)
	}
	return o
}

func (o *Orchestration) ObserveEvent(kind string, began time.Time, err error) {
	if o == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.eventsTotal.WithLabelValues(kind, result).Inc()
	o.eventDuration.WithLabelValues(kind).Observe(time.Since(began).Seconds())
}

func (o *Orchestration) StatusWritten(status string, guardHeld bool) {
	if o == nil {
		return
	}
	guarded := "true"
	if !guardHeld {
		guarded = "false"
		o.lostRaces.Inc()
	}
	o.transitions.WithLabelValues(status, guarded).Inc()
}

func (o *Orchestration) WaitRegistered(callback string) {
	if o != nil {
		o.waitsRegistered.WithLabelValues(callback).Inc()
	}
}

func (o *Orchestration) WaitFired(callback string) {
	if o != nil {
		o.waitsFired.WithLabelValues(callback).Inc()
	}
}

func (o *Orchestration) InitiationPublished(err error) {
	if o == nil {
		return
	}
	if err != nil {
		o.initiations.WithLabelValues("error").Inc()
		return
	}
	o.initiations.WithLabelValues("ok").Inc()
}

func (o *Orchestration) ChildrenAdmitted(started, queued int) {
	if o == nil {
		return
	}
	o.childrenAdmitted.WithLabelValues("started").Add(float64(started))
	o.childrenAdmitted.WithLabelValues("queued").Add(float64(queued))
}
