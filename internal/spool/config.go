// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultSegmentSizeBytes = 16 * 1024 * 1024
	defaultSegmentMaxAge    = 1 * time.Hour
	defaultSyncInterval     = 1 * time.Second

	minCapBytes = 1 << 30       // 1 GiB
	maxCapBytes = 25 << 30      // 25 GiB
	capDivisor  = 20            // default cap = total_fs_bytes / 20
)

// Config configures a Spool. It is populated with functional Options and
// validated once at Open time, following the same
// "applyDefaultsAndValidate" shape this package's sibling components use.
type Config struct {
	Dir string

	SegmentSizeBytes int64
	SegmentMaxAge    time.Duration
	SyncInterval     time.Duration

	// MaxSpoolBytes, if non-zero, overrides the computed default cap
	// clamp(total_fs_bytes/20, 1GiB, 25GiB); either value is then bounded
	// by free space minus KeepFreeBytes.
	MaxSpoolBytes  uint64
	KeepFreeBytes  uint64
	MaxSegmentAge  time.Duration

	Logger log.Logger
	Reg    prometheus.Registerer

	// totalFSBytesFn is overridable in tests to avoid depending on the real
	// filesystem's size.
	totalFSBytesFn func(dir string) (total, free uint64, err error)
}

// Option configures a Config at construction time.
type Option func(*Config)

func WithSegmentSizeBytes(n int64) Option { return func(c *Config) { c.SegmentSizeBytes = n } }
func WithSyncInterval(d time.Duration) Option {
	return func(c *Config) { c.SyncInterval = d }
}
func WithMaxSpoolBytes(n uint64) Option { return func(c *Config) { c.MaxSpoolBytes = n } }
func WithKeepFreeBytes(n uint64) Option { return func(c *Config) { c.KeepFreeBytes = n } }
func WithMaxSegmentAge(d time.Duration) Option {
	return func(c *Config) { c.MaxSegmentAge = d }
}
func WithLogger(l log.Logger) Option              { return func(c *Config) { c.Logger = l } }
func WithRegisterer(r prometheus.Registerer) Option { return func(c *Config) { c.Reg = r } }

func withTotalFSBytesFn(fn func(dir string) (uint64, uint64, error)) Option {
	return func(c *Config) { c.totalFSBytesFn = fn }
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.Dir == "" {
		return fmt.Errorf("spool: Dir must be set")
	}
	if c.SegmentSizeBytes <= 0 {
		c.SegmentSizeBytes = defaultSegmentSizeBytes
	}
	if c.SegmentMaxAge <= 0 {
		c.SegmentMaxAge = defaultSegmentMaxAge
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	if c.totalFSBytesFn == nil {
		c.totalFSBytesFn = statFSBytes
	}
	return nil
}

// effectiveCap computes the operative spool byte cap per §4.1: an operator
// override replaces the clamp(total_fs_bytes/20, 1GiB, 25GiB) default, and
// either value is further bounded by free space minus the configured floor.
func (c *Config) effectiveCap() (cap uint64, free uint64, err error) {
	total, free, err := c.totalFSBytesFn(c.Dir)
	if err != nil {
		return 0, 0, err
	}

	cap = c.MaxSpoolBytes
	if cap == 0 {
		cap = total / capDivisor
		if cap < minCapBytes {
			cap = minCapBytes
		}
		if cap > maxCapBytes {
			cap = maxCapBytes
		}
	}

	if free > c.KeepFreeBytes {
		byFree := free - c.KeepFreeBytes
		if byFree < cap {
			cap = byFree
		}
	} else {
		cap = 0
	}
	return cap, free, nil
}
