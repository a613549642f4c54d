// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultReplicationLag     = 2 * time.Minute
	DefaultLateWindow         = 6 * time.Hour
	MinLateWindow             = 1 * time.Hour
	DefaultCompactionFiles    = 20
	DefaultHotRetentionDays   = 30
	DefaultTickInterval       = 5 * time.Minute
	DefaultShardCount         = 16
	DefaultExportBatchRows    = 50_000
)

// Config configures a Replicator.
type Config struct {
	LakeRoot string
	ColdRoot string // empty disables cold tiering (delete instead of move)
	Dataset  string

	// ReplicationLag is the stability guard subtracted from now() before
	// computing the export target, so unsettled rows are never replicated.
	ReplicationLag time.Duration

	// LateWindow re-exports recent rows to absorb late-arriving inserts.
	// Clamped to a minimum of MinLateWindow (SPEC_FULL §4.5, §9).
	LateWindow time.Duration

	CompactionFileThreshold int
	HotRetentionDays        int
	TickInterval            time.Duration
	ShardCount              uint64
	ExportBatchRows         int

	Logger log.Logger
	Reg    prometheus.Registerer
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.LakeRoot == "" {
		return errLakeRootRequired
	}
	if c.Dataset == "" {
		c.Dataset = "metrics"
	}
	if c.ReplicationLag <= 0 {
		c.ReplicationLag = DefaultReplicationLag
	}
	if c.LateWindow <= 0 {
		c.LateWindow = DefaultLateWindow
	}
	if c.LateWindow < MinLateWindow {
		c.LateWindow = MinLateWindow
	}
	if c.CompactionFileThreshold <= 0 {
		c.CompactionFileThreshold = DefaultCompactionFiles
	}
	if c.HotRetentionDays <= 0 {
		c.HotRetentionDays = DefaultHotRetentionDays
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ShardCount == 0 {
		c.ShardCount = DefaultShardCount
	}
	if c.ExportBatchRows <= 0 {
		c.ExportBatchRows = DefaultExportBatchRows
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}
