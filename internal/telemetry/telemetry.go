// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package telemetry builds the go-kit logger and Prometheus registry every
// cmd entrypoint wires its components with, so log formatting and the
// /metrics HTTP surface are constructed once instead of per component.
package telemetry

import (
	"net/http"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewLogger builds a leveled logfmt logger writing to stderr, timestamped
// and labeled with component, the same shape the teacher's wal.go logger
// calls already assume (level.Debug/Info/Warn/Error wrapping a base
// logger).
func NewLogger(component string) log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "component", component)
	return level.NewFilter(base, level.AllowInfo())
}

// NewRegistry returns a fresh Prometheus registry, never the global
// default, so every component's metrics stay scoped to the process that
// registered them.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ServeMetrics starts a /metrics HTTP endpoint for reg on addr. It does not
// return until the server stops, so callers should run it in its own
// goroutine and treat a
// non-nil error as fatal for the process, the same way a failed listen on
// the primary ingest port would be.
func ServeMetrics(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
