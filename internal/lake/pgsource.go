// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSourceReader is the production SourceReader, backed by a pgx pool. It
// uses a server-side cursor (pgx.Rows, itself backed by a named portal) for
// streaming rather than materializing the whole window in memory, since
// late-arrival windows can be several hours of dense periodic data.
type PgSourceReader struct {
	pool *pgxpool.Pool
}

func NewPgSourceReader(pool *pgxpool.Pool) *PgSourceReader {
	return &PgSourceReader{pool: pool}
}

func (r *PgSourceReader) StreamRows(ctx context.Context, window timeRange, fn func(Row) error) error {
	rows, err := r.pool.Query(ctx, `
SELECT sensor_id, ts, value, quality, inserted_at
FROM metrics
WHERE inserted_at >= $1 AND inserted_at < $2
ORDER BY sensor_id, ts`, window.Start, window.End)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.SensorID, &row.Ts, &row.Value, &row.Quality, &row.InsertedAt); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *PgSourceReader) FillMissingInsertedAt(ctx context.Context, window timeRange) (int, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE metrics SET inserted_at = ts
WHERE inserted_at IS NULL AND ts >= $1 AND ts < $2`, window.Start, window.End)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
