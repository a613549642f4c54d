// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Logger log.Logger
	Reg    prometheus.Registerer
}

func (c *Config) applyDefaultsAndValidate() error {
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}
