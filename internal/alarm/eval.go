// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"fmt"
	"math"
	"time"
)

// evalValues reduces a condition's per-sensor values down to one verdict.
// An empty values slice never passes (nothing observed to judge). The
// observed value reported out is always the first collected value, matching
// what the original backtest surfaces to operators regardless of match
// mode.
func evalValues(values []float64, mode MatchMode, pred func(float64) bool) (bool, *float64) {
	if len(values) == 0 {
		return false, nil
	}
	observed := values[0]
	passed := false
	switch mode {
	case MatchModeAll:
		passed = true
		for _, v := range values {
			if !pred(v) {
				passed = false
				break
			}
		}
	default: // MatchModePerSensor, MatchModeAny
		for _, v := range values {
			if pred(v) {
				passed = true
				break
			}
		}
	}
	return passed, &observed
}

func stateObject(state map[string]any, key string) map[string]any {
	if existing, ok := state[key].(map[string]any); ok {
		return existing
	}
	obj := make(map[string]any)
	state[key] = obj
	return obj
}

func stateInt64(obj map[string]any, key string, def int64) int64 {
	switch v := obj[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return def
}

// evalCondition is the single shared evaluator behind both live alarm
// checks and historical backtests: both call this and applyFiringTiming
// (timing.go) against it, never a divergent copy, so a rule backtests
// exactly the way it would have fired live.
//
// now is the evaluation timestamp (the end of bucket idx). series/idx index
// the dense per-sensor bucket grid. lastSeenEpochBySensor tracks the most
// recent bucket at which each sensor had a sample, for Offline. state is
// the condition tree's persistent per-path memory (used by
// ConsecutivePeriods); path identifies this node's position in the tree so
// siblings don't collide.
func evalCondition(
	node ConditionNode,
	target ResolvedTarget,
	now time.Time,
	series *DenseSeriesIndex,
	idx int,
	lastSeenEpochBySensor map[string]int64,
	state map[string]any,
	path string,
) (bool, *float64) {
	switch n := node.(type) {
	case Threshold:
		values := collectValues(target, series, idx)
		return evalValues(values, target.MatchMode, func(v float64) bool {
			return compare(v, n.Op, n.Value)
		})

	case Range:
		values := collectValues(target, series, idx)
		return evalValues(values, target.MatchMode, func(v float64) bool {
			inside := v >= n.Low && v <= n.High
			if n.Mode == RangeOutside {
				return !inside
			}
			return inside
		})

	case Offline:
		nowEpoch := epochOf(now)
		var statuses []float64
		for _, sensorID := range target.SensorIDs {
			last, seen := lastSeenEpochBySensor[sensorID]
			offline := true
			if seen {
				elapsed := nowEpoch - last
				if elapsed < 0 {
					elapsed = 0
				}
				offline = elapsed >= n.MissingForSeconds
			}
			if offline {
				statuses = append(statuses, 1)
			} else {
				statuses = append(statuses, 0)
			}
		}
		if len(statuses) == 0 {
			return false, nil
		}
		passed := false
		switch target.MatchMode {
		case MatchModeAll:
			passed = true
			for _, s := range statuses {
				if s == 0 {
					passed = false
					break
				}
			}
		default:
			for _, s := range statuses {
				if s != 0 {
					passed = true
					break
				}
			}
		}
		return passed, nil

	case RollingWindow:
		windowSeconds := n.WindowSeconds
		if windowSeconds < 1 {
			windowSeconds = 1
		}
		cutoff := epochOf(now) - windowSeconds
		startIdx := windowStartIdx(series, cutoff)

		var samples []float64
		for _, sensorID := range target.SensorIDs {
			values := series.SliceValues(sensorID, startIdx, idx)
			stats := windowStats(values)
			sample, ok := aggregateSample(stats, n.Aggregate)
			if !ok {
				continue
			}
			samples = append(samples, sample)
		}
		return evalValues(samples, target.MatchMode, func(v float64) bool {
			return compare(v, n.Op, n.Value)
		})

	case Deviation:
		windowSeconds := n.WindowSeconds
		if windowSeconds < 1 {
			windowSeconds = 1
		}
		cutoff := epochOf(now) - windowSeconds
		startIdx := windowStartIdx(series, cutoff)

		var samples []float64
		for _, sensorID := range target.SensorIDs {
			current := series.ValueAt(sensorID, idx)
			if current == nil {
				continue
			}
			values := series.SliceValues(sensorID, startIdx, idx)
			stats := windowStats(values)
			var baselineValue float64
			var ok bool
			switch n.Baseline {
			case BaselineMedian:
				baselineValue, ok = stats.Median, stats.HasMedian
			default:
				baselineValue, ok = stats.Avg, stats.HasAvg
			}
			if !ok {
				continue
			}
			delta := math.Abs(*current - baselineValue)
			var deviation float64
			switch n.Mode {
			case DeviationPercent:
				if math.Abs(baselineValue) <= deviationEpsilon {
					continue
				}
				deviation = (delta / math.Abs(baselineValue)) * 100.0
			default:
				deviation = delta
			}
			samples = append(samples, deviation)
		}
		return evalValues(samples, target.MatchMode, func(v float64) bool {
			return v >= n.Value
		})

	case ConsecutivePeriods:
		childPassed, childObserved := evalCondition(n.Child, target, now, series, idx, lastSeenEpochBySensor, state, path+".cp")

		stateKey := "cp:" + path
		obj := stateObject(state, stateKey)
		currentPeriod := periodBucket(n.Period, now)
		streak := stateInt64(obj, "streak", 0)
		lastPeriod, hasLastPeriod := obj["last_period"]

		if childPassed {
			if n.Period == PeriodEval {
				streak++
			} else if hasLastPeriod {
				lp := toInt64(lastPeriod)
				switch {
				case lp == currentPeriod:
					if streak < 1 {
						streak = 1
					}
				case lp+1 == currentPeriod:
					streak++
				default:
					streak = 1
				}
			} else {
				streak = 1
			}
		} else {
			streak = 0
		}
		obj["last_period"] = currentPeriod
		obj["streak"] = streak
		state["consecutive_hits"] = streak

		return streak >= n.Count, childObserved

	case All:
		var observed *float64
		for i, child := range n.Children {
			passed, childObserved := evalCondition(child, target, now, series, idx, lastSeenEpochBySensor, state, fmt.Sprintf("%s.all[%d]", path, i))
			if observed == nil {
				observed = childObserved
			}
			if !passed {
				return false, observed
			}
		}
		return true, observed

	case Any:
		var observed *float64
		for i, child := range n.Children {
			passed, childObserved := evalCondition(child, target, now, series, idx, lastSeenEpochBySensor, state, fmt.Sprintf("%s.any[%d]", path, i))
			if observed == nil {
				observed = childObserved
			}
			if passed {
				return true, observed
			}
		}
		return false, observed

	case Not:
		passed, observed := evalCondition(n.Child, target, now, series, idx, lastSeenEpochBySensor, state, path+".not")
		return !passed, observed

	default:
		return false, nil
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

func collectValues(target ResolvedTarget, series *DenseSeriesIndex, idx int) []float64 {
	var values []float64
	for _, sensorID := range target.SensorIDs {
		if v := series.ValueAt(sensorID, idx); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

func aggregateSample(stats WindowStats, op AggregateOp) (float64, bool) {
	switch op {
	case AggregateMin:
		return stats.Min, stats.HasMin
	case AggregateMax:
		return stats.Max, stats.HasMax
	case AggregateStdDev:
		return stats.StdDev, stats.HasStdDev
	default:
		return stats.Avg, stats.HasAvg
	}
}

// windowStartIdx converts an epoch cutoff to a bucket index the way the
// original's div_euclid-based arithmetic does, floor-dividing so a cutoff
// that falls mid-bucket still includes that bucket.
func windowStartIdx(series *DenseSeriesIndex, cutoff int64) int {
	delta := cutoff - series.StartBucketEpoch
	idx := floorDiv(delta, series.IntervalSeconds)
	if idx < 0 {
		idx = 0
	}
	return int(idx)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// periodBucket maps now to the coarse period key ConsecutivePeriods counts
// streaks over.
func periodBucket(period ConsecutivePeriod, now time.Time) int64 {
	switch period {
	case PeriodHour:
		return epochOf(now) / 3600
	case PeriodDay:
		u := now.UTC()
		return daysFromCivil(u.Year(), int(u.Month()), u.Day())
	default: // PeriodEval
		return epochOf(now)
	}
}

// daysFromCivil is a days-since-epoch calendar conversion (Howard Hinnant's
// algorithm), giving a monotonically increasing day number equivalent to
// chrono's num_days_from_ce without pulling in a date library for one
// subtraction.
func daysFromCivil(y, m, d int) int64 {
	if m <= 2 {
		y--
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	var mp int
	if m > 2 {
		mp = m - 3
	} else {
		mp = m + 9
	}
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return int64(era)*146097 + int64(doe) - 719468
}
