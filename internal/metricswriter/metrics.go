// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metricswriter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type writerMetrics struct {
	enqueued         prometheus.Counter
	batchesCommitted prometheus.Counter
	batchesFailed    prometheus.Counter
	rowsCommitted    prometheus.Counter
	retries          prometheus.Counter
}

func newWriterMetrics(reg prometheus.Registerer) *writerMetrics {
	return &writerMetrics{
		enqueued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "metricswriter_rows_enqueued_total",
			Help: "metricswriter_rows_enqueued_total counts rows accepted onto the batching queue.",
		}),
		batchesCommitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "metricswriter_batches_committed_total",
			Help: "metricswriter_batches_committed_total counts batches successfully upserted.",
		}),
		batchesFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "metricswriter_batches_failed_total",
			Help: "metricswriter_batches_failed_total counts batches abandoned after exhausting retries or hitting a permanent error.",
		}),
		rowsCommitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "metricswriter_rows_committed_total",
			Help: "metricswriter_rows_committed_total counts individual rows committed across all batches.",
		}),
		retries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "metricswriter_retries_total",
			Help: "metricswriter_retries_total counts retry attempts after a transient upsert error.",
		}),
	}
}
