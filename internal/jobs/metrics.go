// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type runnerMetrics struct {
	completed prometheus.Counter
	failed    prometheus.Counter
	canceled  prometheus.Counter
	running   prometheus.Gauge
}

func newRunnerMetrics(reg prometheus.Registerer) *runnerMetrics {
	return &runnerMetrics{
		completed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "jobs_completed_total counts analysis jobs that finished successfully.",
		}),
		failed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "jobs_failed_total counts analysis jobs that terminated with an error.",
		}),
		canceled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "jobs_canceled_total",
			Help: "jobs_canceled_total counts analysis jobs terminated by cooperative cancellation.",
		}),
		running: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "jobs_running reports how many job executors are currently active.",
		}),
	}
}
