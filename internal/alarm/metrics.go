// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type evaluatorMetrics struct {
	evaluations   prometheus.Counter
	firingChanges prometheus.Counter
	backtests     prometheus.Counter
}

func newEvaluatorMetrics(reg prometheus.Registerer) *evaluatorMetrics {
	return &evaluatorMetrics{
		evaluations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "alarm_evaluations_total",
			Help: "alarm_evaluations_total counts condition-tree evaluations across all targets.",
		}),
		firingChanges: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "alarm_firing_changes_total",
			Help: "alarm_firing_changes_total counts fired/resolved transitions after debounce and clear hysteresis.",
		}),
		backtests: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "alarm_backtests_total",
			Help: "alarm_backtests_total counts completed alarm_rule_backtest_v1 job runs.",
		}),
	}
}
