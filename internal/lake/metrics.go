// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type replicatorMetrics struct {
	tickFailures      prometheus.Counter
	partitionsWritten prometheus.Counter
	compactions       prometheus.Counter
}

func newReplicatorMetrics(reg prometheus.Registerer) *replicatorMetrics {
	return &replicatorMetrics{
		tickFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lake_tick_failures_total",
			Help: "lake_tick_failures_total counts replication ticks that ended in an error; the watermark stays at the previous successful run.",
		}),
		partitionsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lake_partitions_written_total",
			Help: "lake_partitions_written_total counts (date, shard) partitions that received a new Parquet file in a tick.",
		}),
		compactions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lake_compactions_total",
			Help: "lake_compactions_total counts partition compaction runs triggered by the file-count threshold.",
		}),
	}
}
