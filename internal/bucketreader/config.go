// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bucketreader

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxExpectedBuckets bounds sensor_count * bucket_count for one
// query; callers exceeding it must widen the interval (SPEC_FULL §4.6).
const DefaultMaxExpectedBuckets = 200_000

type Config struct {
	MaxExpectedBuckets int
	Logger             log.Logger
	Reg                prometheus.Registerer
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.MaxExpectedBuckets <= 0 {
		c.MaxExpectedBuckets = DefaultMaxExpectedBuckets
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}
