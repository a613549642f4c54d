// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"math"
	"time"

	"github.com/farmtelemetry/core/internal/alarm"
	"github.com/farmtelemetry/core/internal/bucketreader"
)

// expectedBucketCount mirrors the original's expected_bucket_count: the
// number of interval-wide buckets needed to cover [start, end).
func expectedBucketCount(start, end time.Time, intervalSeconds int64) int64 {
	seconds := end.Sub(start).Seconds()
	if seconds <= 0 {
		return 0
	}
	return int64(math.Ceil(seconds / float64(intervalSeconds)))
}

// floorDivSeconds floor-divides like the evaluator's own window-index
// arithmetic, used here to align a start timestamp down to the nearest
// bucket boundary.
func floorDivSeconds(epoch, interval int64) int64 {
	q := epoch / interval
	if epoch%interval != 0 && (epoch < 0) != (interval < 0) {
		q--
	}
	return q
}

// loadDenseSeries queries bucketed samples for sensorIDs over [start, end)
// and packs them into a alarm.DenseSeriesIndex, the same dense grid shape
// the backtest and live evaluator both index against.
func loadDenseSeries(
	ctx context.Context,
	reader *bucketreader.Reader,
	sensorIDs []string,
	start, end time.Time,
	intervalSeconds int64,
	mode bucketreader.AggMode,
) (*alarm.DenseSeriesIndex, error) {
	rows, err := reader.Read(ctx, bucketreader.Query{
		SensorIDs:       sensorIDs,
		Start:           start,
		End:             end,
		IntervalSeconds: intervalSeconds,
		Mode:            mode,
		Quality:         bucketreader.QualityFilter{GoodOnly: true},
		MinSamples:      1,
	})
	if err != nil {
		return nil, err
	}

	startBucketEpoch := floorDivSeconds(start.Unix(), intervalSeconds) * intervalSeconds
	bucketCount := int(expectedBucketCount(start, end, intervalSeconds))

	valuesBySensor := make(map[string][]*float64, len(sensorIDs))
	for _, id := range sensorIDs {
		valuesBySensor[id] = make([]*float64, bucketCount)
	}

	for _, row := range rows {
		series, ok := valuesBySensor[row.SensorID]
		if !ok {
			continue
		}
		idx := floorDivSeconds(row.Bucket.Unix()-startBucketEpoch, intervalSeconds)
		if idx < 0 || int(idx) >= bucketCount {
			continue
		}
		if math.IsNaN(row.Value) || math.IsInf(row.Value, 0) {
			continue
		}
		v := row.Value
		series[idx] = &v
	}

	return &alarm.DenseSeriesIndex{
		StartBucketEpoch: startBucketEpoch,
		IntervalSeconds:  intervalSeconds,
		BucketCount:      bucketCount,
		ValuesBySensor:   valuesBySensor,
	}, nil
}
