// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"time"
)

// MetadataStore is the lookup interface the ingest machine uses to resolve
// sensors and nodes. A concrete implementation backs it with pgstore; tests
// use an in-memory fake.
type MetadataStore interface {
	SensorByID(ctx context.Context, sensorID string) (SensorMeta, bool, error)
	NodeByID(ctx context.Context, nodeID string) (NodeMeta, bool, error)
	NodeByAgentID(ctx context.Context, agentNodeID string) (NodeMeta, bool, error)
	NodeByMACHint(ctx context.Context, mac string) (NodeMeta, bool, error)

	// EnsureNodeHealthSensor auto-creates (or merges config into) a sensor
	// row for a synthesized node-health metric, mirroring the original's
	// ensure_node_health_sensor jsonb-merge upsert.
	EnsureNodeHealthSensor(ctx context.Context, sensorID, nodeID, key string) error
}

// LivenessStore tracks last-seen timestamps and online/offline status for
// sensors and nodes.
type LivenessStore interface {
	TouchSensor(ctx context.Context, sensorID string, ts time.Time) (wasOffline bool, err error)
	TouchNode(ctx context.Context, nodeID string, ts time.Time, statusOnly bool) (wasOffline bool, err error)

	MarkSensorOffline(ctx context.Context, sensorID string) error
	MarkNodeOffline(ctx context.Context, nodeID string) error

	// SensorsForSweep and NodesForSweep return the current online set for
	// the periodic offline sweep.
	SensorsForSweep(ctx context.Context) ([]SensorLiveness, error)
	NodesForSweep(ctx context.Context) ([]NodeLiveness, error)
}

// SensorLiveness is a liveness snapshot for one online sensor, used by the
// offline sweep.
type SensorLiveness struct {
	SensorID        string
	NodeID          string
	LastSample      time.Time
	IsCOV           bool
	IntervalSeconds float64
	RollingAvgSecs  float64
}

// NodeLiveness is a liveness snapshot for one online node.
type NodeLiveness struct {
	NodeID         string
	LastStatusSeen time.Time
	LastMetricSeen time.Time
}
