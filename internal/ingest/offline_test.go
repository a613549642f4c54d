// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLivenessStore struct {
	sensors        []SensorLiveness
	nodes          []NodeLiveness
	sensorsOffline []string
	nodesOffline   []string
}

func (f *fakeLivenessStore) TouchSensor(ctx context.Context, sensorID string, ts time.Time) (bool, error) {
	return false, nil
}
func (f *fakeLivenessStore) TouchNode(ctx context.Context, nodeID string, ts time.Time, statusOnly bool) (bool, error) {
	return false, nil
}
func (f *fakeLivenessStore) MarkSensorOffline(ctx context.Context, sensorID string) error {
	f.sensorsOffline = append(f.sensorsOffline, sensorID)
	return nil
}
func (f *fakeLivenessStore) MarkNodeOffline(ctx context.Context, nodeID string) error {
	f.nodesOffline = append(f.nodesOffline, nodeID)
	return nil
}
func (f *fakeLivenessStore) SensorsForSweep(ctx context.Context) ([]SensorLiveness, error) {
	return f.sensors, nil
}
func (f *fakeLivenessStore) NodesForSweep(ctx context.Context) ([]NodeLiveness, error) {
	return f.nodes, nil
}

func TestOfflineSweepMarksStaleSensorAndCOVIsExempt(t *testing.T) {
	meta := newFakeMetadataStore()
	sink := &fakeSink{}
	live := &fakeLivenessStore{
		sensors: []SensorLiveness{
			{SensorID: "stale", NodeID: "n1", LastSample: time.Now().Add(-time.Hour), IntervalSeconds: 10},
			{SensorID: "cov", NodeID: "n1", LastSample: time.Now().Add(-time.Hour), IsCOV: true},
		},
	}
	m, err := New(Config{OfflineFloor: time.Second}, meta, live, sink, nil)
	require.NoError(t, err)

	require.NoError(t, m.RunOfflineSweep(context.Background(), time.Now()))
	require.Equal(t, []string{"stale"}, live.sensorsOffline)
}

func TestOfflineSweepCascadesNodeToSensors(t *testing.T) {
	meta := newFakeMetadataStore()
	sink := &fakeSink{}
	live := &fakeLivenessStore{
		sensors: []SensorLiveness{
			{SensorID: "s1", NodeID: "n1", LastSample: time.Now(), IntervalSeconds: 10},
		},
		nodes: []NodeLiveness{
			{NodeID: "n1", LastStatusSeen: time.Now().Add(-time.Hour), LastMetricSeen: time.Now().Add(-time.Hour)},
		},
	}
	m, err := New(Config{NodeOfflineFloor: time.Second, HeartbeatInterval: time.Second}, meta, live, sink, nil)
	require.NoError(t, err)

	require.NoError(t, m.RunOfflineSweep(context.Background(), time.Now()))
	require.Equal(t, []string{"n1"}, live.nodesOffline)
	require.Contains(t, live.sensorsOffline, "s1")
}
