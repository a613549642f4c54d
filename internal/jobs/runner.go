// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-kit/log/level"
)

// Runner is C8: it polls Store for queued jobs matching its registry and
// runs each on its own goroutine, bounded by a worker-pool semaphore
// (SPEC_FULL §5's "multiple jobs may run in parallel, bounded by a
// worker-pool semaphore").
type Runner struct {
	cfg     Config
	store   Store
	reg     Registry
	metrics *runnerMetrics

	sem chan struct{}
	wg  sync.WaitGroup

	cancel context.CancelFunc
	doneCh chan struct{}
}

func Open(cfg Config, store Store, reg Registry) (*Runner, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:     cfg,
		store:   store,
		reg:     reg,
		metrics: newRunnerMetrics(cfg.Reg),
		sem:     make(chan struct{}, cfg.MaxParallel),
		doneCh:  make(chan struct{}),
	}
	return r, nil
}

// Run polls for queued jobs until ctx is canceled, dispatching each claimed
// job to its own goroutine. It blocks until every in-flight job has
// finished and the poll loop has exited.
func (r *Runner) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	jobTypes := r.reg.JobTypes()
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case <-ticker.C:
			r.pollOnce(ctx, jobTypes)
		}
	}
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.doneCh
}

func (r *Runner) pollOnce(ctx context.Context, jobTypes []string) {
	for {
		select {
		case r.sem <- struct{}{}:
		default:
			return // worker pool saturated; try again next tick
		}

		job, err := r.store.ClaimNext(ctx, jobTypes)
		if err != nil {
			level.Error(r.cfg.Logger).Log("msg", "claim queued job failed", "err", err)
			<-r.sem
			return
		}
		if job == nil {
			<-r.sem
			return
		}

		r.metrics.running.Inc()
		r.wg.Add(1)
		go func(job Row) {
			defer func() {
				<-r.sem
				r.metrics.running.Dec()
				r.wg.Done()
			}()
			r.execute(ctx, job)
		}(*job)
	}
}

func (r *Runner) execute(ctx context.Context, job Row) {
	executor, ok := r.reg[job.JobType]
	if !ok {
		_ = r.store.Fail(ctx, job.ID, &Error{Code: "unknown_job_type", Message: "no executor registered for " + job.JobType})
		r.metrics.failed.Inc()
		return
	}

	sink := &progressSink{store: r.store, jobID: job.ID}
	result, err := executor(ctx, job, sink)
	if err == nil {
		if result == nil {
			result = json.RawMessage("{}")
		}
		if err := r.store.Complete(ctx, job.ID, result); err != nil {
			level.Error(r.cfg.Logger).Log("msg", "complete job failed", "job_id", job.ID, "err", err)
		}
		r.metrics.completed.Inc()
		return
	}

	if failure, ok := err.(*Failure); ok && failure.Canceled {
		if err := r.store.Cancel(ctx, job.ID); err != nil {
			level.Error(r.cfg.Logger).Log("msg", "cancel job failed", "job_id", job.ID, "err", err)
		}
		r.metrics.canceled.Inc()
		return
	}

	jobErr := &Error{Code: "internal_error", Message: err.Error()}
	if failure, ok := err.(*Failure); ok && failure.Err != nil {
		jobErr = failure.Err
	}
	if err := r.store.Fail(ctx, job.ID, jobErr); err != nil {
		level.Error(r.cfg.Logger).Log("msg", "fail job failed", "job_id", job.ID, "err", err)
	}
	r.metrics.failed.Inc()
}
