// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package forwarder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type forwarderMetrics struct {
	liveDropped         prometheus.Counter
	publishedLive       prometheus.Counter
	publishErrors       prometheus.Counter
	acksForwarded       prometheus.Counter
	lossRangesAnnounced prometheus.Counter
}

func newForwarderMetrics(reg prometheus.Registerer) *forwarderMetrics {
	return &forwarderMetrics{
		liveDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "forwarder_live_samples_dropped_total",
			Help: "forwarder_live_samples_dropped_total counts samples dropped from the best-effort live path due to a full queue; the durable spool copy is unaffected.",
		}),
		publishedLive: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "forwarder_live_samples_published_total",
			Help: "forwarder_live_samples_published_total counts samples successfully handed to the transport's live publish path.",
		}),
		publishErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "forwarder_publish_errors_total",
			Help: "forwarder_publish_errors_total counts failed calls to the transport's Publish method.",
		}),
		acksForwarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "forwarder_acks_forwarded_total",
			Help: "forwarder_acks_forwarded_total counts ack watermarks received from the transport and applied to the spool.",
		}),
		lossRangesAnnounced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "forwarder_loss_ranges_announced_total",
			Help: "forwarder_loss_ranges_announced_total counts loss ranges re-announced to the transport for reconnect catch-up.",
		}),
	}
}
