// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/farmtelemetry/core/internal/alarm"
	"github.com/farmtelemetry/core/internal/bucketreader"
)

// TargetResolver expands a rule's target selector into the concrete
// sensor groupings the condition tree evaluates against.
type TargetResolver interface {
	ResolveTargets(ctx context.Context, selector json.RawMessage) ([]alarm.ResolvedTarget, error)
}

type alarmBacktestParams struct {
	TargetSelector        json.RawMessage `json:"target_selector"`
	ConditionAST          json.RawMessage `json:"condition_ast"`
	Timing                json.RawMessage `json:"timing"`
	Start                 string          `json:"start"`
	End                   string          `json:"end"`
	IntervalSeconds       *int64          `json:"interval_seconds"`
	BucketAggregationMode string          `json:"bucket_aggregation_mode"`
}

// NewAlarmRuleBacktestExecutor builds the alarm_rule_backtest_v1 job
// executor: it parses and validates params the way the original's
// execute() does (RFC3339 timestamps, end strictly after start, sensor
// resolution must be non-empty), clamps interval_seconds against
// alarm.MaxBacktestBuckets, loads a dense bucket series for every resolved
// sensor, then replays it through evaluator.RunBacktest.
func NewAlarmRuleBacktestExecutor(evaluator *alarm.Evaluator, resolver TargetResolver, reader *bucketreader.Reader) Executor {
	return func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error) {
		var params alarmBacktestParams
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, FailWith("invalid_params", "malformed job parameters: "+err.Error())
		}

		start, err := time.Parse(time.RFC3339, params.Start)
		if err != nil {
			return nil, FailWith("invalid_params", "Invalid start/end timestamp")
		}
		endInclusive, err := time.Parse(time.RFC3339, params.End)
		if err != nil {
			return nil, FailWith("invalid_params", "Invalid start/end timestamp")
		}
		if !endInclusive.After(start) {
			return nil, FailWith("invalid_params", "end must be after start")
		}
		end := endInclusive.Add(time.Microsecond)

		condition, err := parseCondition(params.ConditionAST)
		if err != nil {
			return nil, FailWith("invalid_params", err.Error())
		}
		timing, err := parseTiming(params.Timing)
		if err != nil {
			return nil, FailWith("invalid_params", err.Error())
		}
		envelope := alarm.RuleEnvelope{Condition: condition, Timing: timing}

		evalStepSeconds := timing.EvalIntervalSeconds
		if evalStepSeconds <= 0 {
			evalStepSeconds = alarm.DefaultEvalIntervalSeconds
		}

		intervalSeconds := evalStepSeconds
		if params.IntervalSeconds != nil && *params.IntervalSeconds > 0 {
			intervalSeconds = *params.IntervalSeconds
		}
		if expected := expectedBucketCount(start, end, intervalSeconds); expected > alarm.MaxBacktestBuckets {
			horizonSeconds := int64(endInclusive.Sub(start).Seconds())
			if horizonSeconds < 1 {
				horizonSeconds = 1
			}
			intervalSeconds = horizonSeconds / alarm.MaxBacktestBuckets
			if intervalSeconds < 1 {
				intervalSeconds = 1
			}
		}

		if err := sink.Update(ctx, Progress{Phase: "resolve_targets", Message: "Resolving alarm rule targets"}); err != nil {
			return nil, err
		}
		if canceled, err := sink.CancelRequested(ctx); err != nil {
			return nil, err
		} else if canceled {
			return nil, Canceled()
		}

		targets, err := resolver.ResolveTargets(ctx, params.TargetSelector)
		if err != nil {
			return nil, FailWith("target_resolution_failed", err.Error())
		}
		if len(targets) == 0 {
			return nil, FailWith("invalid_params", "No targets matched the selector")
		}

		sensorSet := make(map[string]struct{})
		for _, t := range targets {
			for _, id := range t.SensorIDs {
				if id != "" {
					sensorSet[id] = struct{}{}
				}
			}
		}
		if len(sensorSet) == 0 {
			return nil, FailWith("invalid_params", "No sensors resolved for selector")
		}
		sensorIDs := make([]string, 0, len(sensorSet))
		for id := range sensorSet {
			sensorIDs = append(sensorIDs, id)
		}
		sort.Strings(sensorIDs)

		total := int64(len(sensorIDs))
		if err := sink.Update(ctx, Progress{Phase: "load_series", Total: &total, Message: "Loading bucketed sensor series"}); err != nil {
			return nil, err
		}

		mode := bucketreader.AggMode(params.BucketAggregationMode)
		if mode == "" {
			mode = bucketreader.AggAuto
		}
		loadStarted := time.Now()
		series, err := loadDenseSeries(ctx, reader, sensorIDs, start, end, intervalSeconds, mode)
		if err != nil {
			return nil, FailWith("series_load_failed", err.Error())
		}
		loadMs := time.Since(loadStarted).Milliseconds()

		bucketTotal := int64(series.BucketCount)
		if err := sink.Update(ctx, Progress{Phase: "simulate", Total: &bucketTotal, Message: "Simulating alarm evaluation over history"}); err != nil {
			return nil, err
		}

		simStarted := time.Now()
		result, err := evaluator.RunBacktest(ctx, envelope, targets, series, endInclusive, evalStepSeconds, func(completed int) {
			c := int64(completed)
			_ = sink.Update(ctx, Progress{Phase: "simulate", Completed: c, Total: &bucketTotal})
		})
		if err != nil {
			return nil, err
		}
		simMs := time.Since(simStarted).Milliseconds()

		if err := sink.Update(ctx, Progress{Phase: "finalize", Completed: bucketTotal, Total: &bucketTotal, Message: "Computing backtest summaries"}); err != nil {
			return nil, err
		}

		payload := map[string]any{
			"job_type": "alarm_rule_backtest_v1",
			"params": map[string]any{
				"start":                   start.Format(time.RFC3339),
				"end":                     endInclusive.Format(time.RFC3339),
				"interval_seconds":        intervalSeconds,
				"bucket_aggregation_mode": string(mode),
				"eval_step_seconds":       evalStepSeconds,
			},
			"summary": result.Summary,
			"targets": result.Targets,
			"timings_ms": map[string]int64{
				"load_series": loadMs,
				"simulate":    simMs,
			},
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, FailWith("result_encode_failed", err.Error())
		}
		return encoded, nil
	}
}
