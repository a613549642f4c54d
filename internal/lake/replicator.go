// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

// Replicator is C5. One instance owns one lake directory (manifest + state)
// for one dataset. Its concurrency model is SPEC_FULL §9's "coroutine
// control flow → task + channel: the replicator is a simple task with
// tick()/sleep/cancellation-check" — no background goroutine of its own;
// callers drive Tick on their own schedule (see cmd/lake-replicator).
type Replicator struct {
	cfg     Config
	source  SourceReader
	logger  log.Logger
	metrics *replicatorMetrics
}

func Open(cfg Config, source SourceReader) (*Replicator, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return &Replicator{
		cfg:     cfg,
		source:  source,
		logger:  cfg.Logger,
		metrics: newReplicatorMetrics(cfg.Reg),
	}, nil
}

// Tick runs one replication cycle per SPEC_FULL §4.5's nine numbered
// steps. It never returns a sleep duration or schedules itself; the caller
// owns pacing (cfg.TickInterval is advisory metadata for that caller).
func (r *Replicator) Tick(ctx context.Context, now time.Time) error {
	start := now
	state, err := loadState(r.cfg.LakeRoot)
	if err != nil {
		return err
	}
	manifest, err := loadManifest(r.cfg.LakeRoot)
	if err != nil {
		return err
	}

	runErr := r.runTick(ctx, now, &state, &manifest)

	state.LastRunStartedAt = start
	state.LastRunDuration = time.Since(start)
	if runErr != nil {
		state.LastRunStatus = "failed"
		state.LastError = runErr.Error()
		level.Error(r.logger).Log("msg", "lake replication tick failed", "err", runErr)
		r.metrics.tickFailures.Inc()
	} else {
		state.LastRunStatus = "ok"
		state.LastError = ""
	}

	if err := persistState(r.cfg.LakeRoot, state); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return runErr
}

func (r *Replicator) runTick(ctx context.Context, now time.Time, state *ReplicationState, manifest *Manifest) error {
	// Step 1: compute target_inserted_at.
	target := now.Add(-r.cfg.ReplicationLag)

	var lastInsertedAt time.Time
	if state.LastInsertedAt != nil {
		lastInsertedAt = *state.LastInsertedAt
	}

	// Step 2: no-op if nothing new to export.
	if !target.After(lastInsertedAt) {
		state.BacklogSeconds = 0
		return nil
	}

	// Step 3: late-arrival export window.
	exportStart := lastInsertedAt
	lateStart := target.Add(-r.cfg.LateWindow)
	if lateStart.After(exportStart) {
		exportStart = lateStart
	}
	window := timeRange{Start: exportStart, End: target}

	state.BacklogSeconds = target.Sub(exportStart).Seconds()
	if state.BacklogSeconds > r.cfg.LateWindow.Hours()*3600 {
		level.Warn(r.logger).Log("msg", "lake replication backlog exceeds late window; coverage may have gaps", "backlog_seconds", state.BacklogSeconds)
	}

	// Step 4: fill missing inserted_at for legacy rows in the window.
	if filled, err := r.source.FillMissingInsertedAt(ctx, window); err != nil {
		return fmt.Errorf("fill missing inserted_at: %w", err)
	} else if filled > 0 {
		level.Info(r.logger).Log("msg", "backfilled inserted_at", "count", filled)
	}

	// Step 5: stream rows, bucket by (date, shard).
	runID := newRunID()
	buckets := make(map[string][]Row)
	rowCount := 0
	if err := r.source.StreamRows(ctx, window, func(row Row) error {
		pkey := partitionKey(row.Ts, shardFor(row.SensorID, r.cfg.ShardCount))
		buckets[pkey] = append(buckets[pkey], row)
		rowCount++
		return nil
	}); err != nil {
		return fmt.Errorf("stream rows: %w", err)
	}
	state.LastRunRowCount = rowCount

	// Step 6: write and publish each partition's new file.
	dm := manifest.Datasets[r.cfg.Dataset]
	if dm.Partitions == nil {
		dm.Partitions = make(map[string]PartitionInfo)
	}

	pkeys := make([]string, 0, len(buckets))
	for pkey := range buckets {
		pkeys = append(pkeys, pkey)
	}
	sort.Strings(pkeys)

	for _, pkey := range pkeys {
		rows := buckets[pkey]
		dir := r.partitionDir(r.cfg.LakeRoot, pkey)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir partition %s: %w", pkey, err)
		}

		finalName := fmt.Sprintf("part-%s-%d.parquet", runID, len(rows))
		tmpPath := filepath.Join(dir, finalName+".tmp")
		if err := writeParquetFile(tmpPath, rows); err != nil {
			return fmt.Errorf("write partition %s: %w", pkey, err)
		}
		finalPath := filepath.Join(dir, finalName)
		if err := os.Rename(tmpPath, finalPath); err != nil {
			return fmt.Errorf("publish partition %s: %w", pkey, err)
		}

		info := dm.Partitions[pkey]
		if info.Location == "" {
			info.Location = LocationHot
		}
		info.FileCount++
		dm.Partitions[pkey] = info
		r.metrics.partitionsWritten.Inc()

		// Step 7: compaction trigger.
		if info.FileCount > r.cfg.CompactionFileThreshold {
			if _, inputCount, err := compactPartition(dir, runID); err != nil {
				level.Warn(r.logger).Log("msg", "compaction failed", "partition", pkey, "err", err)
			} else if inputCount > 0 {
				now := now
				info.FileCount = 1
				info.CompactedAt = &now
				dm.Partitions[pkey] = info
				r.metrics.compactions.Inc()
			}
		}
	}
	manifest.Datasets[r.cfg.Dataset] = dm

	// Step 8: hot retention.
	if err := r.enforceHotRetention(manifest, now); err != nil {
		return fmt.Errorf("enforce hot retention: %w", err)
	}

	// Step 9: update watermark and persist manifest atomically. The
	// watermark never regresses — only advanced here, on the success path.
	dm = manifest.Datasets[r.cfg.Dataset]
	dm.Watermark = &target
	manifest.Datasets[r.cfg.Dataset] = dm
	if err := persistManifest(r.cfg.LakeRoot, *manifest); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}

	state.LastInsertedAt = &target
	return nil
}

func (r *Replicator) partitionDir(root, pkey string) string {
	parts := strings.SplitN(pkey, "/", 2)
	return filepath.Join(root, r.cfg.Dataset, "date="+parts[0], "shard="+parts[1])
}

func partitionKey(ts time.Time, shard uint64) string {
	return fmt.Sprintf("%s/%02d", partitionDate(ts), shard)
}

func partitionDateFromKey(pkey string) (time.Time, error) {
	parts := strings.SplitN(pkey, "/", 2)
	return time.Parse("2006-01-02", parts[0])
}

func newRunID() string {
	return uuid.New().String()
}
