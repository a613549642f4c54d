// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuantileSortedInterpolates(t *testing.T) {
	sorted := []int64{10, 20, 30, 40}
	median, ok := quantileSorted(sorted, 0.5)
	require.True(t, ok)
	require.Equal(t, int64(25), median)

	single, ok := quantileSorted([]int64{7}, 0.9)
	require.True(t, ok)
	require.Equal(t, int64(7), single)

	_, ok = quantileSorted(nil, 0.5)
	require.False(t, ok)
}

func TestWindowStatsComputesAvgMinMaxStdDevMedian(t *testing.T) {
	stats := windowStats([]float64{1, 2, 3, 4})
	require.True(t, stats.HasAvg)
	require.Equal(t, 2.5, stats.Avg)
	require.Equal(t, 1.0, stats.Min)
	require.Equal(t, 4.0, stats.Max)
	require.True(t, stats.HasMedian)
	require.Equal(t, 2.5, stats.Median)
	require.True(t, stats.HasStdDev)
}

func TestWindowStatsSingleValueHasNoStdDev(t *testing.T) {
	stats := windowStats([]float64{5})
	require.True(t, stats.HasAvg)
	require.False(t, stats.HasStdDev)
}

func TestWindowStatsEmptyIsZeroValue(t *testing.T) {
	stats := windowStats(nil)
	require.False(t, stats.HasAvg)
}
