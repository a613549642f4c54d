// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"math"
	"sort"
)

// quantileSorted linearly interpolates the q-quantile (0..1) of an
// already-sorted ascending slice. Returns ok=false for an empty slice.
func quantileSorted(sorted []int64, q float64) (int64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return sorted[0], true
	}
	if q < 0 {
		q = 0
	} else if q > 1 {
		q = 1
	}
	pos := q * float64(n-1)
	idx := int(math.Floor(pos))
	frac := pos - float64(idx)
	lo := sorted[idx]
	hiIdx := idx + 1
	if hiIdx > n-1 {
		hiIdx = n - 1
	}
	hi := sorted[hiIdx]
	interpolated := float64(lo) + frac*float64(hi-lo)
	return int64(math.Round(interpolated)), true
}

// quantileSortedFloat is the float64 analogue used by windowStats' median,
// which always samples at q=0.5.
func quantileSortedFloat(sorted []float64, q float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return sorted[0], true
	}
	if q < 0 {
		q = 0
	} else if q > 1 {
		q = 1
	}
	pos := q * float64(n-1)
	idx := int(math.Floor(pos))
	frac := pos - float64(idx)
	lo := sorted[idx]
	hiIdx := idx + 1
	if hiIdx > n-1 {
		hiIdx = n - 1
	}
	hi := sorted[hiIdx]
	return lo + frac*(hi-lo), true
}

// windowStats computes avg/min/max/stddev/median over the finite values in
// values. Non-finite values are dropped first.
func windowStats(values []float64) WindowStats {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
	}
	if len(finite) == 0 {
		return WindowStats{}
	}
	sort.Float64s(finite)

	var sum float64
	for _, v := range finite {
		sum += v
	}
	n := float64(len(finite))
	avg := sum / n

	stats := WindowStats{
		Avg:    avg,
		HasAvg: true,
		Min:    finite[0],
		HasMin: true,
		Max:    finite[len(finite)-1],
		HasMax: true,
	}

	if median, ok := quantileSortedFloat(finite, 0.5); ok {
		stats.Median = median
		stats.HasMedian = true
	}

	if len(finite) >= 2 {
		var variance float64
		for _, v := range finite {
			d := v - avg
			variance += d * d
		}
		variance /= n
		sd := math.Sqrt(variance)
		if !math.IsNaN(sd) && !math.IsInf(sd, 0) {
			stats.StdDev = sd
			stats.HasStdDev = true
		}
	}

	return stats
}
