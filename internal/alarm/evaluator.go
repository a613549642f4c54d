// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"context"
	"time"
)

// Evaluator is C7: it evaluates a rule's condition tree against the latest
// bucketed samples for one tick and turns the raw verdict into a debounced
// firing decision, persisting per-(rule,target) memory across ticks.
type Evaluator struct {
	cfg     Config
	store   *StateStore
	metrics *evaluatorMetrics
}

func Open(cfg Config, store *StateStore) (*Evaluator, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg, store: store, metrics: newEvaluatorMetrics(cfg.Reg)}, nil
}

// Tick evaluates ruleID's condition tree for one target at timestamp now
// and returns the debounced firing decision. It is the live-evaluation
// counterpart to RunBacktest's inner loop body: both call evalCondition and
// applyFiringTiming identically, so a rule fires live exactly the way its
// backtest predicted it would.
func (e *Evaluator) Tick(
	ruleID string,
	envelope RuleEnvelope,
	target ResolvedTarget,
	now time.Time,
	series *DenseSeriesIndex,
	idx int,
	lastSeenEpochBySensor map[string]int64,
	currentlyFiring bool,
) (desiredFiring bool, observed *float64, err error) {
	state := e.store.Load(ruleID, target.TargetKey)

	shouldFireNow, obs := evalCondition(envelope.Condition, target, now, series, idx, lastSeenEpochBySensor, state, "root")
	e.metrics.evaluations.Inc()

	desired := applyFiringTiming(shouldFireNow, currentlyFiring, envelope.Timing, now, state)
	if desired != currentlyFiring {
		e.metrics.firingChanges.Inc()
	}

	if err := e.store.Save(ruleID, target.TargetKey, state); err != nil {
		return currentlyFiring, obs, err
	}
	return desired, obs, nil
}

// RunBacktest delegates to the package-level simulation and records a
// completed-backtest count alongside the live evaluator's own metrics, so
// both evaluation paths surface on the same dashboard.
func (e *Evaluator) RunBacktest(
	ctx context.Context,
	envelope RuleEnvelope,
	targets []ResolvedTarget,
	series *DenseSeriesIndex,
	endInclusive time.Time,
	evalStepSeconds int64,
	onProgress func(completed int),
) (BacktestResult, error) {
	result, err := RunBacktest(ctx, envelope, targets, series, endInclusive, evalStepSeconds, onProgress)
	if err != nil {
		return BacktestResult{}, err
	}
	e.metrics.backtests.Inc()
	return result, nil
}
