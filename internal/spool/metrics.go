// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type spoolMetrics struct {
	appends           prometheus.Counter
	samplesWritten    prometheus.Counter
	bytesWritten      prometheus.Counter
	segmentRotations  prometheus.Counter
	segmentsEvicted   *prometheus.CounterVec
	lossRanges        prometheus.Counter
	backlogSamples    prometheus.Gauge
	spoolBytesUsed    prometheus.Gauge
}

func newSpoolMetrics(reg prometheus.Registerer) *spoolMetrics {
	return &spoolMetrics{
		appends: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spool_appends_total",
			Help: "spool_appends_total counts calls to Append, i.e. batches of samples accepted.",
		}),
		samplesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spool_samples_written_total",
			Help: "spool_samples_written_total counts individual sample records written to segments.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spool_bytes_written_total",
			Help: "spool_bytes_written_total counts frame bytes (header+payload) written to segments.",
		}),
		segmentRotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spool_segment_rotations_total",
			Help: "spool_segment_rotations_total counts how many times the open segment was sealed and replaced.",
		}),
		segmentsEvicted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spool_segments_evicted_total",
				Help: "spool_segments_evicted_total counts segments removed by cap enforcement, labeled by reason.",
			},
			[]string{"reason"},
		),
		lossRanges: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "spool_loss_ranges_total",
			Help: "spool_loss_ranges_total counts loss ranges recorded due to cap eviction of unacked segments.",
		}),
		backlogSamples: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "spool_backlog_samples",
			Help: "spool_backlog_samples is the current count of unacked samples (next_seq - acked_seq - 1).",
		}),
		spoolBytesUsed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "spool_bytes_used",
			Help: "spool_bytes_used is the current total size of all segment files on disk.",
		}),
	}
}
