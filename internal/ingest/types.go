// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package ingest implements C3: the per-sample ingest state machine that
// sits between the forwarder-facing transport and the metrics writer (C4).
// It resolves sensor/node metadata, tracks liveness, applies rolling-average
// and change-of-value reduction, and synthesizes node-health samples.
package ingest

import "time"

// MetricRow is a single inbound reading, as received from a spool replay or
// a live transport. Seq and StreamID are optional: present for samples that
// came through the durable spool path, absent for synthetic rows (e.g.
// node-health).
type MetricRow struct {
	SensorID    string
	Ts          time.Time
	Value       float64
	Quality     int16
	Source      string
	Seq         *uint64
	StreamID    string
	NodeMQTTID  string
	Backfill    bool
}

// SensorSource tags the provenance of a sensor, replacing the original's
// free-form config.jsonb "source" field with a closed set per SPEC_FULL §9's
// "polymorphic metadata dicts → tagged variants" design note.
type SensorSource string

const (
	SourceDefault    SensorSource = ""
	SourceNodeHealth SensorSource = "node_health"
	SourceRenogy     SensorSource = "renogy"
	SourceWS2902     SensorSource = "ws2902"
	SourceDerived    SensorSource = "derived"
	SourceEmporia    SensorSource = "emporia"
	SourceExternal   SensorSource = "external"
)

// SensorMeta is the subset of sensor metadata the ingest machine needs.
type SensorMeta struct {
	SensorID         string
	NodeID           string
	IntervalSeconds  float64
	RollingAvgSecs   float64
	Unit             string
	Type             string
	Source           SensorSource
	PollEnabled      bool
	Deleted          bool
}

// IsCOV reports whether this sensor is change-of-value (emits only on value
// change) rather than periodic.
func (s SensorMeta) IsCOV() bool {
	return s.IntervalSeconds == 0 && s.RollingAvgSecs == 0
}

// NodeMeta is the subset of node metadata the ingest machine needs.
type NodeMeta struct {
	NodeID          string
	AgentNodeID     string
	MACHint         string
	HeartbeatSecs   float64
}
