// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metricswriter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtelemetry/core/internal/errkind"
)

// PgUpserter is the production Upserter, backed by a pgx connection pool.
// It queues one single-row INSERT .. ON CONFLICT statement per row in one
// pgx.Batch; the server runs the batch as one implicit transaction, so the
// whole batch commits or fails together. It does not build a single
// multi-row statement.
type PgUpserter struct {
	pool *pgxpool.Pool
}

// NewPgUpserter wraps an already-configured pool. The pool's lifecycle is
// owned by the caller.
func NewPgUpserter(pool *pgxpool.Pool) *PgUpserter {
	return &PgUpserter{pool: pool}
}

func (u *PgUpserter) UpsertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	now := time.Now().UTC()

	const stmt = `
INSERT INTO metrics (sensor_id, ts, value, quality, inserted_at)
SELECT $1, $2, $3, $4, $5
FROM sensors
WHERE sensors.sensor_id = $1
  AND sensors.deleted_at IS NULL
  AND COALESCE(sensors.config->>'poll_enabled', 'true') != 'false'
ON CONFLICT (sensor_id, ts)
DO UPDATE SET value = EXCLUDED.value, inserted_at = EXCLUDED.inserted_at`

	for _, r := range rows {
		b.Queue(stmt, r.SensorID, r.Ts, r.Value, r.Quality, now)
	}

	br := u.pool.SendBatch(ctx, b)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return classifyPgError(err)
		}
	}
	return nil
}

// classifyPgError maps pgx/pgconn errors onto the errkind taxonomy so the
// Writer's retry loop can tell transient connection trouble from a
// permanent schema mismatch.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08": // connection exception
			return errkind.ErrTransient
		case "40": // transaction rollback (serialization failure, deadlock)
			return errkind.ErrTransient
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.ErrTransient
	}
	return err
}
