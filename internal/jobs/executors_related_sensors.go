// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/farmtelemetry/core/internal/bucketreader"
)

// CandidatePool supplies the candidate sensor ids a related_sensors_v1 job
// ranks against the focus sensor (same-node/same-unit/same-type filtering
// happens at this boundary, keeping the executor itself filter-agnostic).
type CandidatePool interface {
	CandidateSensorIDs(ctx context.Context, focusSensorID string) ([]string, error)
}

type relatedSensorsParams struct {
	FocusSensorID   string `json:"focus_sensor_id"`
	Start           string `json:"start"`
	End             string `json:"end"`
	IntervalSeconds int64  `json:"interval_seconds"`
	TopK            int    `json:"top_k"`
}

type relatedSensorResult struct {
	SensorID    string  `json:"sensor_id"`
	Correlation float64 `json:"correlation"`
	SampleCount int     `json:"sample_count"`
}

// NewRelatedSensorsExecutor ranks a candidate sensor pool by Pearson
// correlation against a focus sensor's bucketed series over a time range,
// supplementing the distilled spec with a scoped-down version of the
// original's related_sensors_v1 job (SPEC_FULL §4.8).
func NewRelatedSensorsExecutor(pool CandidatePool, reader *bucketreader.Reader) Executor {
	return func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error) {
		var params relatedSensorsParams
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, FailWith("invalid_params", "malformed job parameters: "+err.Error())
		}
		if params.FocusSensorID == "" {
			return nil, FailWith("invalid_params", "focus_sensor_id is required")
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
		topK := params.TopK
		if topK <= 0 {
			topK = 10
		}

		candidates, err := pool.CandidateSensorIDs(ctx, params.FocusSensorID)
		if err != nil {
			return nil, FailWith("target_resolution_failed", err.Error())
		}
		if len(candidates) == 0 {
			return nil, FailWith("invalid_params", "No candidate sensors resolved")
		}

		sensorIDs := append([]string{params.FocusSensorID}, candidates...)
		if err := sink.Update(ctx, Progress{Phase: "load_series", Message: "Loading bucketed sensor series"}); err != nil {
			return nil, err
		}
		series, err := loadDenseSeries(ctx, reader, sensorIDs, start, end, intervalSeconds, bucketreader.AggAvg)
		if err != nil {
			return nil, FailWith("series_load_failed", err.Error())
		}

		focus := series.ValuesBySensor[params.FocusSensorID]
		total := int64(len(candidates))
		results := make([]relatedSensorResult, 0, len(candidates))
		for i, candidateID := range candidates {
			if i%250 == 0 {
				if canceled, err := sink.CancelRequested(ctx); err != nil {
					return nil, err
				} else if canceled {
					return nil, Canceled()
				}
				completed := int64(i)
				_ = sink.Update(ctx, Progress{Phase: "correlate", Completed: completed, Total: &total})
			}
			candidate := series.ValuesBySensor[candidateID]
			a, b := alignSeries(focus, candidate)
			corr, ok := pearson(a, b)
			if !ok {
				continue
			}
			sampleCount := 0
			for i := range a {
				if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
					sampleCount++
				}
			}
			results = append(results, relatedSensorResult{SensorID: candidateID, Correlation: corr, SampleCount: sampleCount})
		}

		sort.SliceStable(results, func(i, j int) bool {
			return math.Abs(results[i].Correlation) > math.Abs(results[j].Correlation)
		})
		if len(results) > topK {
			results = results[:topK]
		}

		encoded, err := json.Marshal(map[string]any{
			"job_type":        "related_sensors_v1",
			"focus_sensor_id": params.FocusSensorID,
			"results":         results,
		})
		if err != nil {
			return nil, FailWith("result_encode_failed", err.Error())
		}
		return encoded, nil
	}
}
