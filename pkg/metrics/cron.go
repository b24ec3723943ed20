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

// CronRecorder records scheduled job runs.
type CronRecorder struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	nextRun  *prometheus.GaugeVec
}

func NewCronRecorder(reg prometheus.Registerer) *CronRecorder {
	r := &CronRecorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cron_job_runs_total", Help: "Scheduled job runs.",
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cron_job_errors_total", Help: "Scheduled job runs that returned an error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cron_job_duration_seconds", Help: "Scheduled job run time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"job"}),
		nextRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cron_job_next_run_timestamp_seconds", Help: "Next scheduled run, unix seconds.",
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(r.runs, r.errors, r.duration, r.nextRun)
	}
	return r
}

func (r *CronRecorder) RecordJobRun(job string, d time.Duration, err error) {
	r.runs.WithLabelValues(job).Inc()
	r.duration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		r.errors.WithLabelValues(job).Inc()
	}
}

func (r *CronRecorder) UpdateNextRun(job string, next time.Time) {
	if !next.IsZero() {
		r.nextRun.WithLabelValues(job).Set(float64(next.Unix()))
	}
}
