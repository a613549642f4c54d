// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package metricswriter implements C4: a bounded-channel batcher that
// upserts MetricRows into the time-series table and, once a batch commits,
// groups the committed rows by (node_mqtt_id, stream_id) and notifies the
// ACK coordinator so the upstream spool can advance past them.
package metricswriter

import "github.com/farmtelemetry/core/internal/ingest"

// AckCoordinator receives committed-seq notifications grouped by the stream
// they came from, eventually relaying an acked_seq upstream to the spool.
type AckCoordinator interface {
	Committed(nodeMQTTID, streamID string, seqs []uint64)
}

// Row is the unit this package batches. It is an alias for ingest.MetricRow
// so a Machine's Sink can be implemented directly by a *Writer.
type Row = ingest.MetricRow
