// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"context"
	"sort"
	"time"

	"github.com/farmtelemetry/core/internal/errkind"
)

// MaxBacktestBuckets bounds how many evaluation buckets one backtest run
// will index in memory; callers must widen the bucket interval beyond this
// (SPEC_FULL §4.7).
const MaxBacktestBuckets = 50_000

// DefaultEvalIntervalSeconds is used when a rule's timing omits an explicit
// evaluation cadence.
const DefaultEvalIntervalSeconds = 60

// Transition is one firing-state change a backtest observed for a target.
type Transition struct {
	Timestamp     time.Time
	Transition    string // "fired" or "resolved"
	ObservedValue *float64
}

// Interval is one contiguous span a target spent in the firing state.
type Interval struct {
	StartTs         time.Time
	EndTs           time.Time
	DurationSeconds int64
}

// TargetSummary aggregates a target's transitions and firing intervals.
type TargetSummary struct {
	FiredCount            uint32
	ResolvedCount         uint32
	IntervalCount         uint32
	TimeFiringSeconds     int64
	MinIntervalSeconds    *int64
	MaxIntervalSeconds    *int64
	MedianIntervalSeconds *int64
	P95IntervalSeconds    *int64
	MeanIntervalSeconds   *float64
}

// TargetResult is one target's full backtest output.
type TargetResult struct {
	TargetKey       string
	SensorIDs       []string
	Transitions     []Transition
	FiringIntervals []Interval
	Summary         TargetSummary
}

// BacktestSummary rolls up every target's results.
type BacktestSummary struct {
	TargetCount            int
	TotalFired             uint32
	TotalResolved          uint32
	TotalTimeFiringSeconds int64
}

// BacktestResult is the full output of RunBacktest.
type BacktestResult struct {
	Targets []TargetResult
	Summary BacktestSummary
}

type targetSimState struct {
	target          ResolvedTarget
	windowState     map[string]any
	currentlyFiring bool
	openStart       *time.Time
	transitions     []Transition
	intervals       []Interval
}

// RunBacktest replays a condition tree over an already-loaded dense bucket
// series, applying the same evaluator and firing-timing state machine a
// live evaluation tick would use, and records every fired/resolved
// transition. endInclusive is the last timestamp the caller asked to
// backtest through; any interval still open there is closed out at
// endInclusive rather than left dangling.
//
// onProgress, if non-nil, is called with the count of buckets simulated so
// far, at most once per 250 buckets, matching the cadence the job runner
// polls progress at.
func RunBacktest(
	ctx context.Context,
	envelope RuleEnvelope,
	targets []ResolvedTarget,
	series *DenseSeriesIndex,
	endInclusive time.Time,
	evalStepSeconds int64,
	onProgress func(completed int),
) (BacktestResult, error) {
	if evalStepSeconds < series.IntervalSeconds {
		evalStepSeconds = series.IntervalSeconds
	}
	stepBuckets := int((float64(evalStepSeconds) + float64(series.IntervalSeconds) - 1) / float64(series.IntervalSeconds))
	if stepBuckets < 1 {
		stepBuckets = 1
	}

	lastSeenEpochBySensor := make(map[string]int64)
	states := make([]*targetSimState, 0, len(targets))
	for _, t := range targets {
		states = append(states, &targetSimState{target: t, windowState: make(map[string]any)})
	}

	for idx := 0; idx < series.BucketCount; idx += stepBuckets {
		if err := ctx.Err(); err != nil {
			return BacktestResult{}, errkind.ErrCanceled
		}

		bucketEndEpoch := series.StartBucketEpoch + int64(idx+1)*series.IntervalSeconds
		now := time.Unix(bucketEndEpoch, 0).UTC()

		for sensorID := range series.ValuesBySensor {
			if series.ValueAt(sensorID, idx) != nil {
				lastSeenEpochBySensor[sensorID] = now.Unix()
			}
		}

		for _, st := range states {
			shouldFireNow, observed := evalCondition(envelope.Condition, st.target, now, series, idx, lastSeenEpochBySensor, st.windowState, "root")
			desiredFiring := applyFiringTiming(shouldFireNow, st.currentlyFiring, envelope.Timing, now, st.windowState)

			switch {
			case desiredFiring && !st.currentlyFiring:
				st.transitions = append(st.transitions, Transition{Timestamp: now, Transition: "fired", ObservedValue: observed})
				openAt := now
				st.openStart = &openAt
			case !desiredFiring && st.currentlyFiring:
				st.transitions = append(st.transitions, Transition{Timestamp: now, Transition: "resolved", ObservedValue: observed})
				if st.openStart != nil {
					duration := int64(now.Sub(*st.openStart).Seconds())
					if duration < 0 {
						duration = 0
					}
					st.intervals = append(st.intervals, Interval{StartTs: *st.openStart, EndTs: now, DurationSeconds: duration})
					st.openStart = nil
				}
			}
			st.currentlyFiring = desiredFiring
		}

		if onProgress != nil {
			completed := idx + 1
			if completed > series.BucketCount {
				completed = series.BucketCount
			}
			if completed%250 == 0 {
				onProgress(completed)
			}
		}
	}

	for _, st := range states {
		if st.currentlyFiring && st.openStart != nil {
			duration := int64(endInclusive.Sub(*st.openStart).Seconds())
			if duration < 0 {
				duration = 0
			}
			st.intervals = append(st.intervals, Interval{StartTs: *st.openStart, EndTs: endInclusive, DurationSeconds: duration})
			st.openStart = nil
		}
	}

	result := BacktestSummary{}
	targetResults := make([]TargetResult, 0, len(states))
	for _, st := range states {
		var fired, resolved uint32
		for _, tr := range st.transitions {
			switch tr.Transition {
			case "fired":
				fired++
			case "resolved":
				resolved++
			}
		}
		result.TotalFired += fired
		result.TotalResolved += resolved

		durations := make([]int64, len(st.intervals))
		for i, iv := range st.intervals {
			durations[i] = iv.DurationSeconds
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		var timeFiring int64
		for _, d := range durations {
			timeFiring += d
		}
		result.TotalTimeFiringSeconds += timeFiring

		summary := TargetSummary{
			FiredCount:        fired,
			ResolvedCount:     resolved,
			IntervalCount:     uint32(len(st.intervals)),
			TimeFiringSeconds: timeFiring,
		}
		if len(durations) > 0 {
			min, max := durations[0], durations[len(durations)-1]
			summary.MinIntervalSeconds = &min
			summary.MaxIntervalSeconds = &max
			mean := float64(timeFiring) / float64(len(durations))
			summary.MeanIntervalSeconds = &mean
			if median, ok := quantileSorted(durations, 0.5); ok {
				summary.MedianIntervalSeconds = &median
			}
			if p95, ok := quantileSorted(durations, 0.95); ok {
				summary.P95IntervalSeconds = &p95
			}
		}

		targetResults = append(targetResults, TargetResult{
			TargetKey:       st.target.TargetKey,
			SensorIDs:       st.target.SensorIDs,
			Transitions:     st.transitions,
			FiringIntervals: st.intervals,
			Summary:         summary,
		})
	}

	sort.Slice(targetResults, func(i, j int) bool { return targetResults[i].TargetKey < targetResults[j].TargetKey })
	result.TargetCount = len(targetResults)

	return BacktestResult{Targets: targetResults, Summary: result}, nil
}
