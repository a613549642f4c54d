// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ingestMetrics struct {
	dropped          prometheus.Counter
	emitted          prometheus.Counter
	covSuppressed    prometheus.Counter
	sensorsOffline   prometheus.Counter
	sensorsRecovered prometheus.Counter
	nodesOffline     prometheus.Counter
	nodesRecovered   prometheus.Counter
}

func newIngestMetrics(reg prometheus.Registerer) *ingestMetrics {
	return &ingestMetrics{
		dropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_rows_dropped_total",
			Help: "ingest_rows_dropped_total counts rows dropped because the sensor is unknown, deleted, or polling-disabled.",
		}),
		emitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_rows_emitted_total",
			Help: "ingest_rows_emitted_total counts rows handed to the metrics writer sink after reduction.",
		}),
		covSuppressed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_cov_suppressed_total",
			Help: "ingest_cov_suppressed_total counts change-of-value readings coalesced away within tolerance.",
		}),
		sensorsOffline: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_sensors_marked_offline_total",
			Help: "ingest_sensors_marked_offline_total counts sensors the offline sweep transitioned to offline.",
		}),
		sensorsRecovered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_sensors_recovered_total",
			Help: "ingest_sensors_recovered_total counts sensors that transitioned from offline back to online on a new sample.",
		}),
		nodesOffline: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_nodes_marked_offline_total",
			Help: "ingest_nodes_marked_offline_total counts nodes the offline sweep transitioned to offline.",
		}),
		nodesRecovered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_nodes_recovered_total",
			Help: "ingest_nodes_recovered_total counts nodes that transitioned from offline back to online.",
		}),
	}
}
