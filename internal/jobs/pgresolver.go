// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtelemetry/core/internal/alarm"
	"github.com/farmtelemetry/core/internal/pgstore"
)

// targetSelector is the JSON shape an alarm rule's target_selector field
// takes: either a single sensor, a whole node (per_sensor/all/any across its
// sensors), or an explicit sensor id list.
type targetSelector struct {
	SensorID  string   `json:"sensor_id,omitempty"`
	NodeID    string   `json:"node_id,omitempty"`
	SensorIDs []string `json:"sensor_ids,omitempty"`
	MatchMode string   `json:"match_mode,omitempty"`
}

// PgTargetResolver resolves an alarm rule's target_selector against the
// sensors table, grounding alarm_rule_backtest_v1's target resolution step
// in real metadata instead of a caller-supplied fixed list.
type PgTargetResolver struct {
	pool *pgxpool.Pool
}

func NewPgTargetResolver(pool *pgxpool.Pool) *PgTargetResolver {
	return &PgTargetResolver{pool: pool}
}

func (r *PgTargetResolver) ResolveTargets(ctx context.Context, selector json.RawMessage) ([]alarm.ResolvedTarget, error) {
	var sel targetSelector
	if err := json.Unmarshal(selector, &sel); err != nil {
		return nil, err
	}

	mode := alarm.MatchMode(sel.MatchMode)
	if mode == "" {
		mode = alarm.MatchModePerSensor
	}

	switch {
	case sel.SensorID != "":
		return []alarm.ResolvedTarget{{
			TargetKey:       "sensor:" + sel.SensorID,
			SensorIDs:       []string{sel.SensorID},
			PrimarySensorID: sel.SensorID,
			MatchMode:       alarm.MatchModePerSensor,
		}}, nil

	case len(sel.SensorIDs) > 0:
		ids := append([]string{}, sel.SensorIDs...)
		sort.Strings(ids)
		return []alarm.ResolvedTarget{{
			TargetKey: "sensors:" + ids[0],
			SensorIDs: ids,
			MatchMode: mode,
		}}, nil

	case sel.NodeID != "":
		rows, err := r.pool.Query(ctx, `SELECT sensor_id FROM sensors WHERE node_id = $1 AND deleted = false`, sel.NodeID)
		if err != nil {
			return nil, pgstore.ClassifyError(err)
		}
		defer rows.Close()
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, pgstore.ClassifyError(err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return nil, pgstore.ClassifyError(err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		sort.Strings(ids)
		return []alarm.ResolvedTarget{{
			TargetKey: "node:" + sel.NodeID,
			SensorIDs: ids,
			NodeID:    sel.NodeID,
			MatchMode: mode,
		}}, nil

	default:
		return nil, nil
	}
}

// PgCandidatePool supplies a related_sensors_v1 job's candidate pool as
// every other sensor on the same node as the focus sensor, the simplest
// useful scoping the sensors table can support without a similarity index.
type PgCandidatePool struct {
	pool *pgxpool.Pool
}

func NewPgCandidatePool(pool *pgxpool.Pool) *PgCandidatePool {
	return &PgCandidatePool{pool: pool}
}

func (c *PgCandidatePool) CandidateSensorIDs(ctx context.Context, focusSensorID string) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT sensor_id FROM sensors
		WHERE node_id = (SELECT node_id FROM sensors WHERE sensor_id = $1)
		  AND sensor_id != $1 AND deleted = false
		ORDER BY sensor_id`, focusSensorID)
	if err != nil {
		return nil, pgstore.ClassifyError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, pgstore.ClassifyError(err)
		}
		out = append(out, id)
	}
	return out, pgstore.ClassifyError(rows.Err())
}
