// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command lake-replicator runs C5: the periodic tick that exports stable
// Postgres metric rows into the partitioned Parquet analysis lake.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"

	"github.com/farmtelemetry/core/internal/config"
	"github.com/farmtelemetry/core/internal/lake"
	"github.com/farmtelemetry/core/internal/pgstore"
	"github.com/farmtelemetry/core/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "lake-replicator.yaml", "path to server config YAML")
	flag.Parse()

	logger := telemetry.NewLogger("lake-replicator")
	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns, Logger: logger})
	if err != nil {
		level.Error(logger).Log("msg", "failed to open postgres pool", "err", err)
		os.Exit(1)
	}

	reg := telemetry.NewRegistry()
	replicator, err := lake.Open(lake.Config{
		LakeRoot:       cfg.LakeRoot,
		ColdRoot:       cfg.LakeColdRoot,
		Dataset:        cfg.LakeDataset,
		ReplicationLag: cfg.LakeReplicationLag,
		LateWindow:     cfg.LakeLateWindow,
		TickInterval:   cfg.LakeTickInterval,
		Logger:         logger,
		Reg:            reg,
	}, lake.NewPgSourceReader(pool))
	if err != nil {
		level.Error(logger).Log("msg", "failed to open replicator", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := telemetry.ServeMetrics(cfg.MetricsListenAddr, reg); err != nil {
			level.Warn(logger).Log("msg", "metrics server exited", "err", err)
		}
	}()

	interval := cfg.LakeTickInterval
	if interval <= 0 {
		interval = lake.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	level.Info(logger).Log("msg", "lake-replicator started", "interval", interval)
	for {
		select {
		case now := <-ticker.C:
			if err := replicator.Tick(ctx, now); err != nil {
				level.Error(logger).Log("msg", "replication tick failed", "err", err)
			}
		case <-sig:
			level.Info(logger).Log("msg", "shutting down")
			cancel()
			pool.Close()
			return
		}
	}
}
