// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
)

// RunOfflineSweep runs a single offline-detection pass over every
// currently-online sensor and node, per SPEC_FULL §4.3. Callers schedule
// this on cfg.SweepInterval; it is safe to call concurrently with Handle.
func (m *Machine) RunOfflineSweep(ctx context.Context, now time.Time) error {
	if m.live == nil {
		return nil
	}

	sensors, err := m.live.SensorsForSweep(ctx)
	if err != nil {
		return err
	}
	for _, s := range sensors {
		if s.IsCOV {
			// COV sensors never go offline due to inactivity while their
			// node is online.
			continue
		}
		threshold := m.sensorOfflineThreshold(s)
		if now.Sub(s.LastSample) > threshold {
			if err := m.live.MarkSensorOffline(ctx, s.SensorID); err != nil {
				level.Warn(m.cfg.Logger).Log("msg", "mark sensor offline failed", "sensor_id", s.SensorID, "err", err)
				continue
			}
			m.metrics.sensorsOffline.Inc()
		}
	}

	nodes, err := m.live.NodesForSweep(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		threshold := m.nodeOfflineThreshold(n)
		for _, s := range sensors {
			if s.NodeID == n.NodeID && !s.IsCOV {
				if st := m.sensorOfflineThreshold(s); st > threshold {
					threshold = st
				}
			}
		}
		lastSeen := n.LastStatusSeen
		if n.LastMetricSeen.After(lastSeen) {
			lastSeen = n.LastMetricSeen
		}
		if now.Sub(lastSeen) > threshold {
			if err := m.live.MarkNodeOffline(ctx, n.NodeID); err != nil {
				level.Warn(m.cfg.Logger).Log("msg", "mark node offline failed", "node_id", n.NodeID, "err", err)
				continue
			}
			m.metrics.nodesOffline.Inc()
			// Node going offline cascades: all its online sensors go
			// offline too.
			for _, s := range sensors {
				if s.NodeID == n.NodeID {
					_ = m.live.MarkSensorOffline(ctx, s.SensorID)
				}
			}
		}
	}
	return nil
}

func (m *Machine) sensorOfflineThreshold(s SensorLiveness) time.Duration {
	base := s.IntervalSeconds
	if s.RollingAvgSecs > base {
		base = s.RollingAvgSecs
	}
	t := time.Duration(m.cfg.OfflineMultiplier * base * float64(time.Second))
	if t < m.cfg.OfflineFloor {
		t = m.cfg.OfflineFloor
	}
	return t
}

func (m *Machine) nodeOfflineThreshold(n NodeLiveness) time.Duration {
	t := time.Duration(m.cfg.OfflineMultiplier * float64(m.cfg.HeartbeatInterval))
	if t < m.cfg.NodeOfflineFloor {
		t = m.cfg.NodeOfflineFloor
	}
	return t
}
