// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/farmtelemetry/core/internal/alarm"
)

// parseCondition decodes a condition AST JSON document into the
// alarm.ConditionNode tree the evaluator understands. Each node is tagged
// by a "type" discriminator matching one of the nine closed variants;
// unknown types are rejected rather than silently ignored, since an
// evaluator that drops a sub-condition it doesn't recognize is far more
// dangerous than one that refuses to run at all.
func parseCondition(raw json.RawMessage) (alarm.ConditionNode, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("jobs: decode condition node: %w", err)
	}

	switch head.Type {
	case "threshold":
		var n struct {
			Op    alarm.CompareOp `json:"op"`
			Value float64         `json:"value"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return alarm.Threshold{Op: n.Op, Value: n.Value}, nil

	case "range":
		var n struct {
			Mode alarm.RangeMode `json:"mode"`
			Low  float64         `json:"low"`
			High float64         `json:"high"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return alarm.Range{Mode: n.Mode, Low: n.Low, High: n.High}, nil

	case "offline":
		var n struct {
			MissingForSeconds int64 `json:"missing_for_seconds"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return alarm.Offline{MissingForSeconds: n.MissingForSeconds}, nil

	case "rolling_window":
		var n struct {
			WindowSeconds int64              `json:"window_seconds"`
			Aggregate     alarm.AggregateOp  `json:"aggregate"`
			Op            alarm.CompareOp    `json:"op"`
			Value         float64            `json:"value"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return alarm.RollingWindow{WindowSeconds: n.WindowSeconds, Aggregate: n.Aggregate, Op: n.Op, Value: n.Value}, nil

	case "deviation":
		var n struct {
			WindowSeconds int64               `json:"window_seconds"`
			Baseline      alarm.BaselineOp    `json:"baseline"`
			Mode          alarm.DeviationMode `json:"mode"`
			Value         float64             `json:"value"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return alarm.Deviation{WindowSeconds: n.WindowSeconds, Baseline: n.Baseline, Mode: n.Mode, Value: n.Value}, nil

	case "consecutive_periods":
		var n struct {
			Period alarm.ConsecutivePeriod `json:"period"`
			Count  int64                   `json:"count"`
			Child  json.RawMessage         `json:"child"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		child, err := parseCondition(n.Child)
		if err != nil {
			return nil, err
		}
		return alarm.ConsecutivePeriods{Period: n.Period, Count: n.Count, Child: child}, nil

	case "all", "any":
		var n struct {
			Children []json.RawMessage `json:"children"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		children := make([]alarm.ConditionNode, 0, len(n.Children))
		for _, c := range n.Children {
			parsed, err := parseCondition(c)
			if err != nil {
				return nil, err
			}
			children = append(children, parsed)
		}
		if head.Type == "all" {
			return alarm.All{Children: children}, nil
		}
		return alarm.Any{Children: children}, nil

	case "not":
		var n struct {
			Child json.RawMessage `json:"child"`
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		child, err := parseCondition(n.Child)
		if err != nil {
			return nil, err
		}
		return alarm.Not{Child: child}, nil

	default:
		return nil, fmt.Errorf("jobs: unknown condition node type %q", head.Type)
	}
}

func parseTiming(raw json.RawMessage) (alarm.Timing, error) {
	timing := alarm.Timing{EvalIntervalSeconds: alarm.DefaultEvalIntervalSeconds}
	if len(raw) == 0 {
		return timing, nil
	}
	var n struct {
		DebounceSeconds        *int64 `json:"debounce_seconds"`
		ClearHysteresisSeconds *int64 `json:"clear_hysteresis_seconds"`
		EvalIntervalSeconds    *int64 `json:"eval_interval_seconds"`
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return timing, err
	}
	if n.DebounceSeconds != nil {
		timing.DebounceSeconds = *n.DebounceSeconds
	}
	if n.ClearHysteresisSeconds != nil {
		timing.ClearHysteresisSeconds = *n.ClearHysteresisSeconds
	}
	if n.EvalIntervalSeconds != nil && *n.EvalIntervalSeconds > 0 {
		timing.EvalIntervalSeconds = *n.EvalIntervalSeconds
	}
	return timing, nil
}
