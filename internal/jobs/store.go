// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the persisted job table's access surface. ClaimNext must be
// implemented atomically (e.g. `UPDATE ... WHERE status='queued' ...
// RETURNING *` under `FOR UPDATE SKIP LOCKED`) so two runner instances never
// both claim the same job.
type Store interface {
	ClaimNext(ctx context.Context, jobTypes []string) (*Row, error)
	UpdateProgress(ctx context.Context, jobID string, progress Progress) error
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID string, jobErr *Error) error
	Cancel(ctx context.Context, jobID string) error
}

// progressSink adapts a Store to the narrow interface executors see, so
// they cannot reach into the rest of the job table.
type progressSink struct {
	store       Store
	jobID       string
	lastPersist time.Time
}

// ProgressSink is what an executor calls to report progress and check for
// cancellation between phases. update persists at most once every
// minProgressInterval to avoid hammering the store on tight inner loops;
// cancellation checks always hit the store.
type ProgressSink interface {
	Update(ctx context.Context, progress Progress) error
	CancelRequested(ctx context.Context) (bool, error)
}

const minProgressInterval = 250 * time.Millisecond

func (p *progressSink) Update(ctx context.Context, progress Progress) error {
	if time.Since(p.lastPersist) < minProgressInterval {
		return nil
	}
	p.lastPersist = time.Now()
	return p.store.UpdateProgress(ctx, p.jobID, progress)
}

func (p *progressSink) CancelRequested(ctx context.Context) (bool, error) {
	return p.store.IsCancelRequested(ctx, p.jobID)
}
