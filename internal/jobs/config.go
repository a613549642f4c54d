// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxParallel  = 4
)

type Config struct {
	PollInterval time.Duration
	MaxParallel  int
	Logger       log.Logger
	Reg          prometheus.Registerer
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}
