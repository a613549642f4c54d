// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtelemetry/core/internal/pgstore"
)

// PgLivenessStore backs LivenessStore with a liveness table keyed by entity
// id, tracking last-seen timestamps and an online flag so TouchSensor/
// TouchNode can report the offline->online transition inline with the
// update, the way the sweep needs it (SPEC_FULL §3).
type PgLivenessStore struct {
	pool *pgxpool.Pool
}

func NewPgLivenessStore(pool *pgxpool.Pool) *PgLivenessStore {
	return &PgLivenessStore{pool: pool}
}

func (p *PgLivenessStore) TouchSensor(ctx context.Context, sensorID string, ts time.Time) (bool, error) {
	var wasOffline bool
	err := p.pool.QueryRow(ctx, `
		WITH prev AS (SELECT online FROM sensor_liveness WHERE sensor_id = $1)
		INSERT INTO sensor_liveness (sensor_id, last_sample, online)
		VALUES ($1, $2, true)
		ON CONFLICT (sensor_id) DO UPDATE
		SET last_sample = EXCLUDED.last_sample, online = true
		RETURNING COALESCE((SELECT NOT online FROM prev), false)`, sensorID, ts).Scan(&wasOffline)
	if err != nil {
		return false, pgstore.ClassifyError(err)
	}
	return wasOffline, nil
}

func (p *PgLivenessStore) TouchNode(ctx context.Context, nodeID string, ts time.Time, statusOnly bool) (bool, error) {
	column := "last_metric_seen"
	if statusOnly {
		column = "last_status_seen"
	}
	var wasOffline bool
	err := p.pool.QueryRow(ctx, `
		WITH prev AS (SELECT online FROM node_liveness WHERE node_id = $1)
		INSERT INTO node_liveness (node_id, `+column+`, online)
		VALUES ($1, $2, true)
		ON CONFLICT (node_id) DO UPDATE
		SET `+column+` = EXCLUDED.`+column+`, online = true
		RETURNING COALESCE((SELECT NOT online FROM prev), false)`, nodeID, ts).Scan(&wasOffline)
	if err != nil {
		return false, pgstore.ClassifyError(err)
	}
	return wasOffline, nil
}

func (p *PgLivenessStore) MarkSensorOffline(ctx context.Context, sensorID string) error {
	_, err := p.pool.Exec(ctx, `UPDATE sensor_liveness SET online = false WHERE sensor_id = $1`, sensorID)
	if err != nil {
		return pgstore.ClassifyError(err)
	}
	return nil
}

func (p *PgLivenessStore) MarkNodeOffline(ctx context.Context, nodeID string) error {
	_, err := p.pool.Exec(ctx, `UPDATE node_liveness SET online = false WHERE node_id = $1`, nodeID)
	if err != nil {
		return pgstore.ClassifyError(err)
	}
	return nil
}

func (p *PgLivenessStore) SensorsForSweep(ctx context.Context) ([]SensorLiveness, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT l.sensor_id, s.node_id, l.last_sample, s.interval_seconds = 0 AND s.rolling_avg_seconds = 0,
		       s.interval_seconds, s.rolling_avg_seconds
		FROM sensor_liveness l JOIN sensors s ON s.sensor_id = l.sensor_id
		WHERE l.online = true`)
	if err != nil {
		return nil, pgstore.ClassifyError(err)
	}
	defer rows.Close()

	var out []SensorLiveness
	for rows.Next() {
		var sl SensorLiveness
		if err := rows.Scan(&sl.SensorID, &sl.NodeID, &sl.LastSample, &sl.IsCOV,
			&sl.IntervalSeconds, &sl.RollingAvgSecs); err != nil {
			return nil, pgstore.ClassifyError(err)
		}
		out = append(out, sl)
	}
	return out, pgstore.ClassifyError(rows.Err())
}

func (p *PgLivenessStore) NodesForSweep(ctx context.Context) ([]NodeLiveness, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT node_id, last_status_seen, last_metric_seen FROM node_liveness WHERE online = true`)
	if err != nil {
		return nil, pgstore.ClassifyError(err)
	}
	defer rows.Close()

	var out []NodeLiveness
	for rows.Next() {
		var nl NodeLiveness
		if err := rows.Scan(&nl.NodeID, &nl.LastStatusSeen, &nl.LastMetricSeen); err != nil {
			return nil, pgstore.ClassifyError(err)
		}
		out = append(out, nl)
	}
	return out, pgstore.ClassifyError(rows.Err())
}
