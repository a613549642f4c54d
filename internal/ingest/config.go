// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultCovTolerance is the absolute-value tolerance below which a new
	// COV reading is considered unchanged from the last emitted one.
	DefaultCovTolerance = 1e-6

	// DefaultOfflineMultiplier is applied to a sensor's own interval (or
	// rolling-average window) to compute its offline threshold.
	DefaultOfflineMultiplier = 5.0

	// DefaultOfflineFloor is the minimum offline threshold for any sensor,
	// regardless of how short its interval is.
	DefaultOfflineFloor = 30 * time.Second

	// DefaultNodeOfflineFloor is the minimum offline threshold for a node.
	DefaultNodeOfflineFloor = 15 * time.Second

	// DefaultHeartbeatInterval is the default for Config.HeartbeatInterval,
	// the heartbeat interval the offline sweep assumes for every node.
	DefaultHeartbeatInterval = 60 * time.Second

	// DefaultSweepInterval is how often the offline sweep runs.
	DefaultSweepInterval = 30 * time.Second

	// DefaultPredictiveFeedSize bounds the best-effort predictive-feed
	// channel.
	DefaultPredictiveFeedSize = 256
)

// Config configures a Machine. CovTolerance and OfflineMultiplier are
// operator-tunable policy knobs (SPEC_FULL §9 resolved open question); they
// must never be hardcoded into the evaluation logic itself.
type Config struct {
	CovTolerance      float64
	OfflineMultiplier float64
	OfflineFloor      time.Duration
	NodeOfflineFloor  time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration

	// EnablePredictiveFeed turns on the best-effort fan-out channel consumed
	// by downstream forecasting collaborators.
	EnablePredictiveFeed bool
	PredictiveFeedSize   int

	Logger log.Logger
	Reg    prometheus.Registerer
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.CovTolerance <= 0 {
		c.CovTolerance = DefaultCovTolerance
	}
	if c.OfflineMultiplier <= 0 {
		c.OfflineMultiplier = DefaultOfflineMultiplier
	}
	if c.OfflineFloor <= 0 {
		c.OfflineFloor = DefaultOfflineFloor
	}
	if c.NodeOfflineFloor <= 0 {
		c.NodeOfflineFloor = DefaultNodeOfflineFloor
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.PredictiveFeedSize <= 0 {
		c.PredictiveFeedSize = DefaultPredictiveFeedSize
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}
