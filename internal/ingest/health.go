// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// NodeHealthReading is one derived health metric parsed from a status
// payload (cpu_percent, per-core cpu, memory, storage, ping stats, uptime,
// broker RTT, ...).
type NodeHealthReading struct {
	Key   string
	Value float64
	Ts    time.Time
}

// nodeHealthSensorID synthesizes the stable sensor_id for a node-health
// metric: sha256("node_health|{node_uuid_lower}|{key_lower}")[0:24] hex.
func nodeHealthSensorID(nodeID, key string) string {
	h := sha256.Sum256([]byte("node_health|" + strings.ToLower(nodeID) + "|" + strings.ToLower(key)))
	return hex.EncodeToString(h[:])[:24]
}

// emitNodeHealth converts a node's status-payload readings into MetricRows,
// auto-creating the backing sensor (with a node_health source marker) on
// first use for each key.
func (m *Machine) emitNodeHealth(ctx context.Context, nodeID string, readings []NodeHealthReading) ([]MetricRow, error) {
	rows := make([]MetricRow, 0, len(readings))
	for _, r := range readings {
		sensorID := nodeHealthSensorID(nodeID, r.Key)

		if err := m.meta.EnsureNodeHealthSensor(ctx, sensorID, nodeID, r.Key); err != nil {
			return nil, err
		}

		rows = append(rows, MetricRow{
			SensorID: sensorID,
			Ts:       r.Ts,
			Value:    r.Value,
			Quality:  0,
			Source:   string(SourceNodeHealth),
		})
	}
	return rows, nil
}
