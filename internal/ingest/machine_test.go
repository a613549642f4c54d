// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeMetadataStore struct {
	sensors map[string]SensorMeta
	nodes   map[string]NodeMeta
	byAgent map[string]NodeMeta
	byMAC   map[string]NodeMeta
	healthEnsured []string
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		sensors: make(map[string]SensorMeta),
		nodes:   make(map[string]NodeMeta),
		byAgent: make(map[string]NodeMeta),
		byMAC:   make(map[string]NodeMeta),
	}
}

func (f *fakeMetadataStore) SensorByID(ctx context.Context, id string) (SensorMeta, bool, error) {
	m, ok := f.sensors[id]
	return m, ok, nil
}
func (f *fakeMetadataStore) NodeByID(ctx context.Context, id string) (NodeMeta, bool, error) {
	m, ok := f.nodes[id]
	return m, ok, nil
}
func (f *fakeMetadataStore) NodeByAgentID(ctx context.Context, id string) (NodeMeta, bool, error) {
	m, ok := f.byAgent[id]
	return m, ok, nil
}
func (f *fakeMetadataStore) NodeByMACHint(ctx context.Context, mac string) (NodeMeta, bool, error) {
	m, ok := f.byMAC[mac]
	return m, ok, nil
}
func (f *fakeMetadataStore) EnsureNodeHealthSensor(ctx context.Context, sensorID, nodeID, key string) error {
	f.healthEnsured = append(f.healthEnsured, sensorID)
	return nil
}

type fakeSink struct {
	rows []MetricRow
}

func (s *fakeSink) Enqueue(ctx context.Context, row MetricRow) error {
	s.rows = append(s.rows, row)
	return nil
}

func TestHandleDropsUnknownSensor(t *testing.T) {
	meta := newFakeMetadataStore()
	sink := &fakeSink{}
	m, err := New(Config{}, meta, nil, sink, nil)
	require.NoError(t, err)

	err = m.Handle(context.Background(), MetricRow{SensorID: "nope", Ts: time.Now(), Value: 1})
	require.NoError(t, err)
	require.Empty(t, sink.rows)
}

func TestHandleCOVSuppressesWithinTolerance(t *testing.T) {
	meta := newFakeMetadataStore()
	meta.sensors["s1"] = SensorMeta{SensorID: "s1", PollEnabled: true}
	sink := &fakeSink{}
	m, err := New(Config{CovTolerance: 0.01}, meta, nil, sink, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Handle(ctx, MetricRow{SensorID: "s1", Ts: time.Now(), Value: 10.0}))
	require.NoError(t, m.Handle(ctx, MetricRow{SensorID: "s1", Ts: time.Now(), Value: 10.005}))
	require.NoError(t, m.Handle(ctx, MetricRow{SensorID: "s1", Ts: time.Now(), Value: 11.0}))

	require.Len(t, sink.rows, 2)
	require.Equal(t, 10.0, sink.rows[0].Value)
	require.Equal(t, 11.0, sink.rows[1].Value)
}

func TestHandleRollingAverageEmitsOnBucketBoundary(t *testing.T) {
	meta := newFakeMetadataStore()
	meta.sensors["s1"] = SensorMeta{SensorID: "s1", PollEnabled: true, RollingAvgSecs: 60}
	sink := &fakeSink{}
	m, err := New(Config{}, meta, nil, sink, nil)
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Handle(ctx, MetricRow{SensorID: "s1", Ts: base, Value: 10}))
	require.NoError(t, m.Handle(ctx, MetricRow{SensorID: "s1", Ts: base.Add(30 * time.Second), Value: 20}))
	require.Empty(t, sink.rows)

	require.NoError(t, m.Handle(ctx, MetricRow{SensorID: "s1", Ts: base.Add(90 * time.Second), Value: 99}))
	require.Len(t, sink.rows, 1)
	require.Equal(t, 15.0, sink.rows[0].Value)
}

func TestResolveNodeChainPrefersUUIDThenAliasThenAgentThenMAC(t *testing.T) {
	meta := newFakeMetadataStore()
	meta.byAgent["agent-123"] = NodeMeta{NodeID: "node-xyz"}
	meta.byMAC["aa:bb:cc"] = NodeMeta{NodeID: "node-mac"}
	sink := &fakeSink{}
	m, err := New(Config{}, meta, nil, sink, nil)
	require.NoError(t, err)

	ctx := context.Background()

	uuidID, foundUUID, err := m.ResolveNode(ctx, "123e4567-e89b-12d3-a456-426614174000", "")
	require.NoError(t, err)
	require.True(t, foundUUID)
	require.Equal(t, "123e4567-e89b-12d3-a456-426614174000", uuidID)

	id, found, err := m.ResolveNode(ctx, "agent-123", "")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "node-xyz", id)

	// Now resolves from the alias cache without touching the store again.
	meta.byAgent = map[string]NodeMeta{}
	id2, found2, err := m.ResolveNode(ctx, "agent-123", "")
	require.NoError(t, err)
	require.True(t, found2)
	require.Equal(t, "node-xyz", id2)

	id3, found3, err := m.ResolveNode(ctx, "unknown-agent", "aa:bb:cc")
	require.NoError(t, err)
	require.True(t, found3)
	require.Equal(t, "node-mac", id3)
}

func TestEmitNodeHealthSynthesizesStableSensorID(t *testing.T) {
	meta := newFakeMetadataStore()
	sink := &fakeSink{}
	m, err := New(Config{}, meta, nil, sink, nil)
	require.NoError(t, err)

	ctx := context.Background()
	err = m.EmitNodeHealth(ctx, "NODE-ABC", []NodeHealthReading{
		{Key: "cpu_percent", Value: 42, Ts: time.Now()},
	})
	require.NoError(t, err)
	require.Len(t, sink.rows, 1)
	require.Len(t, sink.rows[0].SensorID, 24)
	require.Equal(t, sink.rows[0].SensorID, nodeHealthSensorID("NODE-ABC", "cpu_percent"))
	require.Len(t, meta.healthEnsured, 1)
}
