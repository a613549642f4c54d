// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bucketreader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type readerMetrics struct {
	tableReads   prometheus.Counter
	lakeReads    prometheus.Counter
	rowsReturned prometheus.Counter
}

func newReaderMetrics(reg prometheus.Registerer) *readerMetrics {
	return &readerMetrics{
		tableReads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bucketreader_table_reads_total",
			Help: "bucketreader_table_reads_total counts queries (or query fragments) served from the live time-series table.",
		}),
		lakeReads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bucketreader_lake_reads_total",
			Help: "bucketreader_lake_reads_total counts queries (or query fragments) served from the Parquet analysis lake.",
		}),
		rowsReturned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bucketreader_rows_returned_total",
			Help: "bucketreader_rows_returned_total counts aggregated bucket rows returned across all queries.",
		}),
	}
}
