// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bucketreader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTable struct{ rows []RawSample }

func (f *fakeTable) ReadRange(ctx context.Context, sensorIDs []string, start, end time.Time) ([]RawSample, error) {
	var out []RawSample
	for _, s := range f.rows {
		if !s.Ts.Before(start) && s.Ts.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeLake struct {
	rows []RawSample
	wm   time.Time
	has  bool
}

func (f *fakeLake) ReadRange(ctx context.Context, sensorIDs []string, start, end time.Time) ([]RawSample, error) {
	var out []RawSample
	for _, s := range f.rows {
		if !s.Ts.Before(start) && s.Ts.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeLake) Watermark(ctx context.Context) (time.Time, bool, error) { return f.wm, f.has, nil }

type fakeKinds struct{ cov map[string]bool }

func (f *fakeKinds) IsCOV(ctx context.Context, sensorID string) (bool, error) {
	return f.cov[sensorID], nil
}

func TestReadAggregatesAvgByDefault(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	table := &fakeTable{rows: []RawSample{
		{SensorID: "s1", Ts: base, Value: 10},
		{SensorID: "s1", Ts: base.Add(30 * time.Second), Value: 20},
	}}
	r, err := Open(Config{}, table, nil, &fakeKinds{})
	require.NoError(t, err)

	rows, err := r.Read(context.Background(), Query{
		SensorIDs: []string{"s1"}, Start: base, End: base.Add(time.Minute), IntervalSeconds: 60, Mode: AggAuto,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 15.0, rows[0].Value)
	require.Equal(t, 2, rows[0].Samples)
}

func TestReadAutoModeUsesLastForCOV(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	table := &fakeTable{rows: []RawSample{
		{SensorID: "cov1", Ts: base, Value: 10},
		{SensorID: "cov1", Ts: base.Add(30 * time.Second), Value: 20},
	}}
	r, err := Open(Config{}, table, nil, &fakeKinds{cov: map[string]bool{"cov1": true}})
	require.NoError(t, err)

	rows, err := r.Read(context.Background(), Query{
		SensorIDs: []string{"cov1"}, Start: base, End: base.Add(time.Minute), IntervalSeconds: 60, Mode: AggAuto,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 20.0, rows[0].Value)
}

func TestReadSplitsBetweenLakeAndTableAtWatermark(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lake := &fakeLake{
		rows: []RawSample{{SensorID: "s1", Ts: base, Value: 1}},
		wm:   base.Add(time.Minute),
		has:  true,
	}
	table := &fakeTable{rows: []RawSample{{SensorID: "s1", Ts: base.Add(2 * time.Minute), Value: 2}}}

	r, err := Open(Config{}, table, lake, &fakeKinds{})
	require.NoError(t, err)

	rows, err := r.Read(context.Background(), Query{
		SensorIDs: []string{"s1"}, Start: base, End: base.Add(3 * time.Minute), IntervalSeconds: 60, Mode: AggSum,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestReadRejectsOversizedBucketCount(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	r, err := Open(Config{MaxExpectedBuckets: 1}, &fakeTable{}, nil, &fakeKinds{})
	require.NoError(t, err)

	_, err = r.Read(context.Background(), Query{
		SensorIDs: []string{"s1", "s2"}, Start: base, End: base.Add(time.Hour), IntervalSeconds: 60,
	})
	require.Error(t, err)
}

func TestReadAppliesGoodOnlyQualityFilter(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	table := &fakeTable{rows: []RawSample{
		{SensorID: "s1", Ts: base, Value: 10, Quality: 0},
		{SensorID: "s1", Ts: base.Add(10 * time.Second), Value: 999, Quality: 5},
	}}
	r, err := Open(Config{}, table, nil, &fakeKinds{})
	require.NoError(t, err)

	rows, err := r.Read(context.Background(), Query{
		SensorIDs: []string{"s1"}, Start: base, End: base.Add(time.Minute), IntervalSeconds: 60, Mode: AggAvg,
		Quality: QualityFilter{GoodOnly: true, MaxQuality: 0},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 10.0, rows[0].Value)
}
