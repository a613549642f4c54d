// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtelemetry/core/internal/pgstore"
)

// PgMetadataStore backs MetadataStore with the sensors/nodes tables,
// following the same pool-and-classify-error shape C4's PgUpserter and C5's
// PgSourceReader already use.
type PgMetadataStore struct {
	pool *pgxpool.Pool
}

func NewPgMetadataStore(pool *pgxpool.Pool) *PgMetadataStore {
	return &PgMetadataStore{pool: pool}
}

func (p *PgMetadataStore) SensorByID(ctx context.Context, sensorID string) (SensorMeta, bool, error) {
	var m SensorMeta
	err := p.pool.QueryRow(ctx, `
		SELECT sensor_id, node_id, interval_seconds, rolling_avg_seconds, unit, type, source,
		       poll_enabled, deleted
		FROM sensors WHERE sensor_id = $1`, sensorID).
		Scan(&m.SensorID, &m.NodeID, &m.IntervalSeconds, &m.RollingAvgSecs, &m.Unit, &m.Type,
			&m.Source, &m.PollEnabled, &m.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return SensorMeta{}, false, nil
	}
	if err != nil {
		return SensorMeta{}, false, pgstore.ClassifyError(err)
	}
	return m, true, nil
}

func (p *PgMetadataStore) NodeByID(ctx context.Context, nodeID string) (NodeMeta, bool, error) {
	return p.nodeBy(ctx, "node_id", nodeID)
}

func (p *PgMetadataStore) NodeByAgentID(ctx context.Context, agentNodeID string) (NodeMeta, bool, error) {
	return p.nodeBy(ctx, "agent_node_id", agentNodeID)
}

func (p *PgMetadataStore) NodeByMACHint(ctx context.Context, mac string) (NodeMeta, bool, error) {
	return p.nodeBy(ctx, "mac_hint", mac)
}

func (p *PgMetadataStore) nodeBy(ctx context.Context, column, value string) (NodeMeta, bool, error) {
	var m NodeMeta
	err := p.pool.QueryRow(ctx, `
		SELECT node_id, agent_node_id, mac_hint, heartbeat_seconds
		FROM nodes WHERE `+column+` = $1`, value).
		Scan(&m.NodeID, &m.AgentNodeID, &m.MACHint, &m.HeartbeatSecs)
	if errors.Is(err, pgx.ErrNoRows) {
		return NodeMeta{}, false, nil
	}
	if err != nil {
		return NodeMeta{}, false, pgstore.ClassifyError(err)
	}
	return m, true, nil
}

// EnsureNodeHealthSensor upserts a synthetic per-node health sensor row,
// jsonb-merging config under key rather than clobbering an existing one —
// the same merge-on-conflict shape the original's ensure_node_health_sensor
// uses.
func (p *PgMetadataStore) EnsureNodeHealthSensor(ctx context.Context, sensorID, nodeID, key string) error {
	cfg, err := json.Marshal(map[string]any{"node_health_key": key})
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sensors (sensor_id, node_id, type, source, poll_enabled, config)
		VALUES ($1, $2, 'node_health', 'node_health', true, $3)
		ON CONFLICT (sensor_id) DO UPDATE
		SET config = sensors.config || EXCLUDED.config`, sensorID, nodeID, cfg)
	if err != nil {
		return pgstore.ClassifyError(err)
	}
	return nil
}
