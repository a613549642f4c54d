// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metricswriter

import (
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultBatchMaxRows     = 500
	DefaultBatchMaxInterval = 1 * time.Second
	DefaultQueueSize        = 4096
	DefaultMaxRetries       = 6
	DefaultBaseBackoff      = 200 * time.Millisecond
	DefaultMaxBackoff       = 30 * time.Second
)

// Config configures a Writer. BatchMaxRows/BatchMaxInterval implement the
// same size-or-interval flush policy C1 uses for fsync and C5 uses for
// ticks (SPEC_FULL §4.4).
type Config struct {
	BatchMaxRows     int
	BatchMaxInterval time.Duration
	QueueSize        int

	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	Logger log.Logger
	Reg    prometheus.Registerer
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.BatchMaxRows <= 0 {
		c.BatchMaxRows = DefaultBatchMaxRows
	}
	if c.BatchMaxInterval <= 0 {
		c.BatchMaxInterval = DefaultBatchMaxInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}
