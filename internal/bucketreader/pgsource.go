// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bucketreader

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtelemetry/core/internal/pgstore"
)

// PgTableReader backs TableReader with the hot metrics table, the same one
// C4's PgUpserter writes into and C5's PgSourceReader exports out of.
type PgTableReader struct {
	pool *pgxpool.Pool
}

func NewPgTableReader(pool *pgxpool.Pool) *PgTableReader {
	return &PgTableReader{pool: pool}
}

func (p *PgTableReader) ReadRange(ctx context.Context, sensorIDs []string, start, end time.Time) ([]RawSample, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT sensor_id, ts, value, quality FROM metrics
		WHERE sensor_id = ANY($1) AND ts >= $2 AND ts < $3
		ORDER BY sensor_id, ts`, sensorIDs, start, end)
	if err != nil {
		return nil, pgstore.ClassifyError(err)
	}
	defer rows.Close()

	var out []RawSample
	for rows.Next() {
		var s RawSample
		if err := rows.Scan(&s.SensorID, &s.Ts, &s.Value, &s.Quality); err != nil {
			return nil, pgstore.ClassifyError(err)
		}
		out = append(out, s)
	}
	return out, pgstore.ClassifyError(rows.Err())
}

// PgSensorKindLookup backs SensorKindLookup against the sensors table.
type PgSensorKindLookup struct {
	pool *pgxpool.Pool
}

func NewPgSensorKindLookup(pool *pgxpool.Pool) *PgSensorKindLookup {
	return &PgSensorKindLookup{pool: pool}
}

func (p *PgSensorKindLookup) IsCOV(ctx context.Context, sensorID string) (bool, error) {
	var isCOV bool
	err := p.pool.QueryRow(ctx, `
		SELECT interval_seconds = 0 AND rolling_avg_seconds = 0
		FROM sensors WHERE sensor_id = $1`, sensorID).Scan(&isCOV)
	if err != nil {
		return false, pgstore.ClassifyError(err)
	}
	return isCOV, nil
}
