// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farmtelemetry/core/internal/bucketreader"
)

type fakeCandidatePool struct{ ids []string }

func (f *fakeCandidatePool) CandidateSensorIDs(ctx context.Context, focusSensorID string) ([]string, error) {
	return f.ids, nil
}

func TestRelatedSensorsExecutorRanksByAbsoluteCorrelation(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []bucketreader.RawSample
	for i := 0; i < 20; i++ {
		v := float64(i)
		rows = append(rows,
			bucketreader.RawSample{SensorID: "focus", Ts: base.Add(time.Duration(i) * time.Minute), Value: v},
			bucketreader.RawSample{SensorID: "twin", Ts: base.Add(time.Duration(i) * time.Minute), Value: v},
			bucketreader.RawSample{SensorID: "inverse", Ts: base.Add(time.Duration(i) * time.Minute), Value: -v},
			bucketreader.RawSample{SensorID: "noise", Ts: base.Add(time.Duration(i) * time.Minute), Value: 5},
		)
	}
	table := &fakeTableSource{rows: rows}
	reader, err := bucketreader.Open(bucketreader.Config{}, table, nil, noopKinds{})
	require.NoError(t, err)

	pool := &fakeCandidatePool{ids: []string{"twin", "inverse", "noise"}}
	executor := NewRelatedSensorsExecutor(pool, reader)

	params, err := json.Marshal(map[string]any{
		"focus_sensor_id":  "focus",
		"start":            base.Format(time.RFC3339),
		"end":              base.Add(20 * time.Minute).Format(time.RFC3339),
		"interval_seconds": 60,
		"top_k":            2,
	})
	require.NoError(t, err)

	result, err := executor(context.Background(), Row{Params: params}, noProgress{})
	require.NoError(t, err)

	var decoded struct {
		Results []relatedSensorResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.Len(t, decoded.Results, 2)
	require.InDelta(t, 1.0, decoded.Results[0].Correlation, 0.01)
}

func TestRollingCorrelationExecutorProducesWindowedSeries(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []bucketreader.RawSample
	for i := 0; i < 30; i++ {
		v := float64(i % 5)
		rows = append(rows,
			bucketreader.RawSample{SensorID: "a", Ts: base.Add(time.Duration(i) * time.Minute), Value: v},
			bucketreader.RawSample{SensorID: "b", Ts: base.Add(time.Duration(i) * time.Minute), Value: v * 2},
		)
	}
	table := &fakeTableSource{rows: rows}
	reader, err := bucketreader.Open(bucketreader.Config{}, table, nil, noopKinds{})
	require.NoError(t, err)

	executor := NewRollingCorrelationExecutor(reader)
	params, err := json.Marshal(map[string]any{
		"sensor_a":         "a",
		"sensor_b":         "b",
		"start":            base.Format(time.RFC3339),
		"end":              base.Add(30 * time.Minute).Format(time.RFC3339),
		"interval_seconds": 60,
		"window_seconds":   600,
		"step_seconds":     600,
	})
	require.NoError(t, err)

	result, err := executor(context.Background(), Row{Params: params}, noProgress{})
	require.NoError(t, err)

	var decoded struct {
		Points []rollingCorrelationPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.NotEmpty(t, decoded.Points)
	require.NotNil(t, decoded.Points[0].Correlation)
	require.InDelta(t, 1.0, *decoded.Points[0].Correlation, 0.01)
}
