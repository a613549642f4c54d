// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farmtelemetry/core/internal/alarm"
	"github.com/farmtelemetry/core/internal/bucketreader"
)

type fakeResolver struct {
	targets []alarm.ResolvedTarget
	err     error
}

func (f *fakeResolver) ResolveTargets(ctx context.Context, selector json.RawMessage) ([]alarm.ResolvedTarget, error) {
	return f.targets, f.err
}

type fakeTableSource struct{ rows []bucketreader.RawSample }

func (f *fakeTableSource) ReadRange(ctx context.Context, sensorIDs []string, start, end time.Time) ([]bucketreader.RawSample, error) {
	var out []bucketreader.RawSample
	for _, s := range f.rows {
		if !s.Ts.Before(start) && s.Ts.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

type noopKinds struct{}

func (noopKinds) IsCOV(ctx context.Context, sensorID string) (bool, error) { return false, nil }

type noProgress struct{}

func (noProgress) Update(ctx context.Context, progress Progress) error       { return nil }
func (noProgress) CancelRequested(ctx context.Context) (bool, error) { return false, nil }

func TestAlarmBacktestExecutorFiresAndResolves(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []bucketreader.RawSample
	values := []float64{0, 20, 20, 20, 0, 0, 0, 0}
	for i, v := range values {
		rows = append(rows, bucketreader.RawSample{SensorID: "s1", Ts: base.Add(time.Duration(i) * time.Minute), Value: v})
	}
	table := &fakeTableSource{rows: rows}
	reader, err := bucketreader.Open(bucketreader.Config{}, table, nil, noopKinds{})
	require.NoError(t, err)

	evaluator, err := alarm.Open(alarm.Config{}, mustOpenStateStore(t))
	require.NoError(t, err)

	resolver := &fakeResolver{targets: []alarm.ResolvedTarget{
		{TargetKey: "sensor:s1", SensorIDs: []string{"s1"}, MatchMode: alarm.MatchModePerSensor},
	}}

	executor := NewAlarmRuleBacktestExecutor(evaluator, resolver, reader)

	params := map[string]any{
		"target_selector":   map[string]any{"sensor_id": "s1"},
		"condition_ast":     map[string]any{"type": "threshold", "op": "gt", "value": 10},
		"timing":            map[string]any{"debounce_seconds": 0, "clear_hysteresis_seconds": 0, "eval_interval_seconds": 60},
		"start":             base.Format(time.RFC3339),
		"end":               base.Add(8 * time.Minute).Format(time.RFC3339),
		"interval_seconds":  60,
	}
	encoded, err := json.Marshal(params)
	require.NoError(t, err)

	result, err := executor(context.Background(), Row{ID: "job-1", Params: encoded}, noProgress{})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.Equal(t, "alarm_rule_backtest_v1", decoded["job_type"])

	summary, ok := decoded["summary"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(1), summary["TotalFired"])
	require.Equal(t, float64(1), summary["TotalResolved"])
}

func mustOpenStateStore(t *testing.T) *alarm.StateStore {
	t.Helper()
	store, err := alarm.OpenStateStore(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
