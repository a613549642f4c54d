// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func simulateConditionSeries(t *testing.T, condition ConditionNode, timing Timing, values []*float64, intervalSeconds int64) []struct {
	Epoch int64
	Kind  string
} {
	t.Helper()
	sensorID := "sensor-1"
	bucketCount := len(values)
	series := &DenseSeriesIndex{
		StartBucketEpoch: 0,
		IntervalSeconds:  intervalSeconds,
		BucketCount:      bucketCount,
		ValuesBySensor:   map[string][]*float64{sensorID: values},
	}
	target := ResolvedTarget{
		TargetKey:       "sensor:" + sensorID,
		SensorIDs:       []string{sensorID},
		PrimarySensorID: sensorID,
		MatchMode:       MatchModePerSensor,
	}

	lastSeenEpochBySensor := make(map[string]int64)
	state := make(map[string]any)
	currentlyFiring := false
	var out []struct {
		Epoch int64
		Kind  string
	}

	for idx := 0; idx < bucketCount; idx++ {
		nowEpoch := int64(idx+1) * intervalSeconds
		now := time.Unix(nowEpoch, 0).UTC()

		if series.ValueAt(sensorID, idx) != nil {
			lastSeenEpochBySensor[sensorID] = nowEpoch
		}

		shouldFireNow, _ := evalCondition(condition, target, now, series, idx, lastSeenEpochBySensor, state, "root")
		desiredFiring := applyFiringTiming(shouldFireNow, currentlyFiring, timing, now, state)

		if desiredFiring && !currentlyFiring {
			out = append(out, struct {
				Epoch int64
				Kind  string
			}{nowEpoch, "fired"})
		} else if !desiredFiring && currentlyFiring {
			out = append(out, struct {
				Epoch int64
				Kind  string
			}{nowEpoch, "resolved"})
		}
		currentlyFiring = desiredFiring
	}
	return out
}

func TestBacktestRespectsDebounceAndClearHysteresis(t *testing.T) {
	condition := Threshold{Op: CompareGt, Value: 10.0}
	timing := Timing{DebounceSeconds: 120, ClearHysteresisSeconds: 120, EvalIntervalSeconds: 60}

	values := []*float64{
		floatPtr(0), floatPtr(11), floatPtr(11), floatPtr(11), floatPtr(0), floatPtr(0), floatPtr(0),
	}

	transitions := simulateConditionSeries(t, condition, timing, values, 60)

	require.Len(t, transitions, 2)
	require.Equal(t, int64(240), transitions[0].Epoch)
	require.Equal(t, "fired", transitions[0].Kind)
	require.Equal(t, int64(420), transitions[1].Epoch)
	require.Equal(t, "resolved", transitions[1].Kind)
}

func TestConsecutivePeriodsEvalAccumulatesEveryPassingStep(t *testing.T) {
	condition := ConsecutivePeriods{
		Period: PeriodEval,
		Count:  3,
		Child:  Threshold{Op: CompareGt, Value: 5},
	}
	series := &DenseSeriesIndex{
		StartBucketEpoch: 0,
		IntervalSeconds:  60,
		BucketCount:      4,
		ValuesBySensor: map[string][]*float64{
			"s1": {floatPtr(10), floatPtr(10), floatPtr(10), floatPtr(10)},
		},
	}
	target := ResolvedTarget{TargetKey: "sensor:s1", SensorIDs: []string{"s1"}, MatchMode: MatchModePerSensor}
	state := make(map[string]any)
	lastSeen := map[string]int64{}

	var results []bool
	for idx := 0; idx < series.BucketCount; idx++ {
		now := time.Unix(int64(idx+1)*60, 0).UTC()
		passed, _ := evalCondition(condition, target, now, series, idx, lastSeen, state, "root")
		results = append(results, passed)
	}
	require.Equal(t, []bool{false, false, true, true}, results)
}

func TestConsecutivePeriodsDayResetsOnGapAndCollapsesSamePeriod(t *testing.T) {
	condition := ConsecutivePeriods{
		Period: PeriodDay,
		Count:  2,
		Child:  Threshold{Op: CompareGt, Value: 5},
	}
	series := &DenseSeriesIndex{
		StartBucketEpoch: 0,
		IntervalSeconds:  3600,
		BucketCount:      3,
		ValuesBySensor:   map[string][]*float64{"s1": {floatPtr(10), floatPtr(10), floatPtr(10)}},
	}
	target := ResolvedTarget{TargetKey: "sensor:s1", SensorIDs: []string{"s1"}, MatchMode: MatchModePerSensor}
	state := make(map[string]any)
	lastSeen := map[string]int64{}

	// Day 0, two samples same day: streak should stay at 1 (collapsed),
	// not increment to 2, since they land in the same calendar day.
	day0a := time.Date(2026, 7, 30, 1, 0, 0, 0, time.UTC)
	day0b := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	day1 := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)

	passed, _ := evalCondition(condition, target, day0a, series, 0, lastSeen, state, "root")
	require.False(t, passed)
	passed, _ = evalCondition(condition, target, day0b, series, 1, lastSeen, state, "root")
	require.False(t, passed)
	passed, _ = evalCondition(condition, target, day1, series, 2, lastSeen, state, "root")
	require.True(t, passed)

	// Day 3 follows a skipped day: the gap resets the streak to 1, below
	// the required count of 2.
	day3 := time.Date(2026, 8, 2, 1, 0, 0, 0, time.UTC)
	passed, _ = evalCondition(condition, target, day3, series, 2, lastSeen, state, "root")
	require.False(t, passed)
}

func TestOfflineConditionFiresWhenNeverSeen(t *testing.T) {
	condition := Offline{MissingForSeconds: 300}
	series := &DenseSeriesIndex{StartBucketEpoch: 0, IntervalSeconds: 60, BucketCount: 1, ValuesBySensor: map[string][]*float64{}}
	target := ResolvedTarget{TargetKey: "sensor:s1", SensorIDs: []string{"s1"}, MatchMode: MatchModePerSensor}

	passed, observed := evalCondition(condition, target, time.Unix(60, 0).UTC(), series, 0, map[string]int64{}, make(map[string]any), "root")
	require.True(t, passed)
	require.Nil(t, observed)
}

func TestRunBacktestProducesTransitionsAndClosesOpenInterval(t *testing.T) {
	condition := Threshold{Op: CompareGt, Value: 10.0}
	timing := Timing{DebounceSeconds: 0, ClearHysteresisSeconds: 0, EvalIntervalSeconds: 60}
	series := &DenseSeriesIndex{
		StartBucketEpoch: 0,
		IntervalSeconds:  60,
		BucketCount:      4,
		ValuesBySensor:   map[string][]*float64{"s1": {floatPtr(0), floatPtr(20), floatPtr(20), floatPtr(20)}},
	}
	target := ResolvedTarget{TargetKey: "sensor:s1", SensorIDs: []string{"s1"}, MatchMode: MatchModePerSensor}
	envelope := RuleEnvelope{Condition: condition, Timing: timing}

	// A zero debounce still holds the first passing bucket pending for one
	// evaluation step (a transition always takes effect on the bucket
	// after it is first observed), so firing starts at idx=2 (t=180), not
	// idx=1 where the value first crosses the threshold.
	endInclusive := time.Unix(240, 0).UTC()
	result, err := RunBacktest(context.Background(), envelope, []ResolvedTarget{target}, series, endInclusive, 60, nil)
	require.NoError(t, err)
	require.Len(t, result.Targets, 1)

	tr := result.Targets[0]
	require.Equal(t, uint32(1), tr.Summary.FiredCount)
	require.Equal(t, uint32(0), tr.Summary.ResolvedCount)
	require.Len(t, tr.FiringIntervals, 1)
	require.Equal(t, int64(60), tr.FiringIntervals[0].DurationSeconds)
}
