// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command analysis-worker runs C8: the analysis job runner, polling the
// persisted job table and executing alarm-rule backtests and correlation
// jobs against the bucketed sensor reader (C6) and alarm evaluator (C7).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"

	"github.com/farmtelemetry/core/internal/alarm"
	"github.com/farmtelemetry/core/internal/bucketreader"
	"github.com/farmtelemetry/core/internal/config"
	"github.com/farmtelemetry/core/internal/jobs"
	"github.com/farmtelemetry/core/internal/pgstore"
	"github.com/farmtelemetry/core/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "analysis-worker.yaml", "path to server config YAML")
	flag.Parse()

	logger := telemetry.NewLogger("analysis-worker")
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

	// The cold-tier lake reader is left nil: job queries typically cover a
	// recent backtest/correlation window the hot table already serves, and
	// C6's Reader already treats a nil LakeReader as "hot table only".
	reader, err := bucketreader.Open(bucketreader.Config{Logger: logger, Reg: reg},
		bucketreader.NewPgTableReader(pool), nil, bucketreader.NewPgSensorKindLookup(pool))
	if err != nil {
		level.Error(logger).Log("msg", "failed to open bucket reader", "err", err)
		os.Exit(1)
	}

	stateStore, err := alarm.OpenStateStore(cfg.AlarmStateDBPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open alarm state store", "err", err)
		os.Exit(1)
	}
	evaluator, err := alarm.Open(alarm.Config{Logger: logger, Reg: reg}, stateStore)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open alarm evaluator", "err", err)
		os.Exit(1)
	}

	resolver := jobs.NewPgTargetResolver(pool)
	candidatePool := jobs.NewPgCandidatePool(pool)

	registry := jobs.Registry{
		"alarm_rule_backtest_v1": jobs.NewAlarmRuleBacktestExecutor(evaluator, resolver, reader),
		"related_sensors_v1":     jobs.NewRelatedSensorsExecutor(candidatePool, reader),
		"rolling_correlation_v1": jobs.NewRollingCorrelationExecutor(reader),
	}

	runner, err := jobs.Open(jobs.Config{
		PollInterval: cfg.JobPollInterval,
		MaxParallel:  cfg.JobMaxParallel,
		Logger:       logger,
		Reg:          reg,
	}, jobs.NewPgStore(pool), registry)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open job runner", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := telemetry.ServeMetrics(cfg.MetricsListenAddr, reg); err != nil {
			level.Warn(logger).Log("msg", "metrics server exited", "err", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	level.Info(logger).Log("msg", "shutting down")
	cancel()
	<-done
	_ = stateStore.Close()
	pool.Close()
}
