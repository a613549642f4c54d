// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// ClaimNext atomically claims the oldest queued job whose type is in
// jobTypes, marking it running. FOR UPDATE SKIP LOCKED lets multiple runner
// processes poll the same table without claiming the same job twice.
func (s *PgStore) ClaimNext(ctx context.Context, jobTypes []string) (*Row, error) {
	const q = `
WITH candidate AS (
	SELECT id FROM analysis_jobs
	WHERE status = 'queued' AND job_type = ANY($1)
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE analysis_jobs j
SET status = 'running', started_at = now()
FROM candidate
WHERE j.id = candidate.id
RETURNING j.id, j.job_type, j.status, j.params, j.progress, j.created_at, j.started_at`

	row := s.pool.QueryRow(ctx, q, jobTypes)
	var r Row
	var progress json.RawMessage
	if err := row.Scan(&r.ID, &r.JobType, &r.Status, &r.Params, &progress, &r.CreatedAt, &r.StartedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(progress) > 0 {
		_ = json.Unmarshal(progress, &r.Progress)
	}
	return &r, nil
}

func (s *PgStore) UpdateProgress(ctx context.Context, jobID string, progress Progress) error {
	encoded, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE analysis_jobs SET progress = $2 WHERE id = $1`, jobID, encoded)
	return err
}

func (s *PgStore) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested *time.Time
	err := s.pool.QueryRow(ctx, `SELECT cancel_requested_at FROM analysis_jobs WHERE id = $1`, jobID).Scan(&requested)
	if err != nil {
		return false, err
	}
	return requested != nil, nil
}

func (s *PgStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
UPDATE analysis_jobs
SET status = 'completed', result = $2, completed_at = now()
WHERE id = $1`, jobID, result)
	return err
}

func (s *PgStore) Fail(ctx context.Context, jobID string, jobErr *Error) error {
	encoded, err := json.Marshal(jobErr)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
UPDATE analysis_jobs
SET status = 'failed', error = $2, completed_at = now()
WHERE id = $1`, jobID, encoded)
	return err
}

func (s *PgStore) Cancel(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE analysis_jobs
SET status = 'canceled', completed_at = now()
WHERE id = $1`, jobID)
	return err
}
