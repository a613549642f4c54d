// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import "math"

// pearson computes the Pearson correlation coefficient between two
// equal-length series, skipping index positions where either side is NaN
// (a bucket either series had no sample for). Returns ok=false when fewer
// than two paired samples remain.
func pearson(a, b []float64) (float64, bool) {
	var sumA, sumB float64
	n := 0
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		sumA += a[i]
		sumB += b[i]
		n++
	}
	if n < 2 {
		return 0, false
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	denom := math.Sqrt(varA * varB)
	if denom == 0 {
		return 0, false
	}
	return cov / denom, true
}

// alignSeries packs a's and b's sparse (nil-able) bucket values into
// equal-length dense float64 slices with NaN standing in for missing
// samples, over the common [0, n) range.
func alignSeries(a, b []*float64) (av, bv []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	av = make([]float64, n)
	bv = make([]float64, n)
	for i := 0; i < n; i++ {
		if a[i] != nil {
			av[i] = *a[i]
		} else {
			av[i] = math.NaN()
		}
		if b[i] != nil {
			bv[i] = *b[i]
		} else {
			bv[i] = math.NaN()
		}
	}
	return av, bv
}
