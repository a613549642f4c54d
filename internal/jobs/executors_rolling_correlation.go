// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/farmtelemetry/core/internal/bucketreader"
)

type rollingCorrelationParams struct {
	SensorA         string `json:"sensor_a"`
	SensorB         string `json:"sensor_b"`
	Start           string `json:"start"`
	End             string `json:"end"`
	IntervalSeconds int64  `json:"interval_seconds"`
	WindowSeconds   int64  `json:"window_seconds"`
	StepSeconds     int64  `json:"step_seconds"`
}

type rollingCorrelationPoint struct {
	WindowEnd   time.Time `json:"window_end"`
	Correlation *float64  `json:"correlation"`
	SampleCount int       `json:"sample_count"`
}

// NewRollingCorrelationExecutor computes a sliding-window Pearson
// correlation series between two sensors, reusing the same dense bucket
// grid shape (alarm.DenseSeriesIndex) C7's evaluator indexes against. A
// scoped-down supplement to the original's correlation_matrix_v1/
// cooccurrence_v1 jobs (SPEC_FULL §4.8 keeps the matrix-profile/embeddings
// jobs out of scope).
func NewRollingCorrelationExecutor(reader *bucketreader.Reader) Executor {
	return func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error) {
		var params rollingCorrelationParams
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, FailWith("invalid_params", "malformed job parameters: "+err.Error())
		}
		if params.SensorA == "" || params.SensorB == "" {
			return nil, FailWith("invalid_params", "sensor_a and sensor_b are required")
		}
		start, err := time.Parse(time.RFC3339, params.Start)
		if err != nil {
			return nil, FailWith("invalid_params", "Invalid start/end timestamp")
		}
		end, err := time.Parse(time.RFC3339, params.End)
		if err != nil {
			return nil, FailWith("invalid_params", "Invalid start/end timestamp")
		}
		if !end.After(start) {
			return nil, FailWith("invalid_params", "end must be after start")
		}
		intervalSeconds := params.IntervalSeconds
		if intervalSeconds <= 0 {
			intervalSeconds = 60
		}
		windowSeconds := params.WindowSeconds
		if windowSeconds < intervalSeconds {
			windowSeconds = intervalSeconds * 10
		}
		stepSeconds := params.StepSeconds
		if stepSeconds <= 0 {
			stepSeconds = windowSeconds
		}

		if err := sink.Update(ctx, Progress{Phase: "load_series", Message: "Loading bucketed sensor series"}); err != nil {
			return nil, err
		}
		series, err := loadDenseSeries(ctx, reader, []string{params.SensorA, params.SensorB}, start, end, intervalSeconds, bucketreader.AggAvg)
		if err != nil {
			return nil, FailWith("series_load_failed", err.Error())
		}

		windowBuckets := int(windowSeconds / intervalSeconds)
		if windowBuckets < 2 {
			windowBuckets = 2
		}
		stepBuckets := int(stepSeconds / intervalSeconds)
		if stepBuckets < 1 {
			stepBuckets = 1
		}

		a := series.ValuesBySensor[params.SensorA]
		b := series.ValuesBySensor[params.SensorB]

		total := int64(series.BucketCount)
		var points []rollingCorrelationPoint
		for windowEndIdx := windowBuckets; windowEndIdx <= series.BucketCount; windowEndIdx += stepBuckets {
			if canceled, err := sink.CancelRequested(ctx); err != nil {
				return nil, err
			} else if canceled {
				return nil, Canceled()
			}
			windowStartIdx := windowEndIdx - windowBuckets

			av, bv := alignSeries(a[windowStartIdx:windowEndIdx], b[windowStartIdx:windowEndIdx])
			corr, ok := pearson(av, bv)

			sampleCount := 0
			for i := range av {
				if !isNaNPair(av[i], bv[i]) {
					sampleCount++
				}
			}

			windowEnd := time.Unix(series.StartBucketEpoch+int64(windowEndIdx)*intervalSeconds, 0).UTC()
			point := rollingCorrelationPoint{WindowEnd: windowEnd, SampleCount: sampleCount}
			if ok {
				c := corr
				point.Correlation = &c
			}
			points = append(points, point)

			completed := int64(windowEndIdx)
			if completed%250 == 0 {
				_ = sink.Update(ctx, Progress{Phase: "correlate", Completed: completed, Total: &total})
			}
		}

		encoded, err := json.Marshal(map[string]any{
			"job_type": "rolling_correlation_v1",
			"sensor_a": params.SensorA,
			"sensor_b": params.SensorB,
			"points":   points,
		})
		if err != nil {
			return nil, FailWith("result_encode_failed", err.Error())
		}
		return encoded, nil
	}
}

func isNaNPair(a, b float64) bool {
	return a != a || b != b // NaN != NaN
}
