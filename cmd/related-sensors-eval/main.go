// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command related-sensors-eval runs a single related_sensors_v1 evaluation
// from the command line, without going through the job table — useful for
// ad hoc investigation of which sensors correlate with a given one.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/farmtelemetry/core/internal/bucketreader"
	"github.com/farmtelemetry/core/internal/config"
	"github.com/farmtelemetry/core/internal/jobs"
	"github.com/farmtelemetry/core/internal/pgstore"
	"github.com/farmtelemetry/core/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "related-sensors-eval.yaml", "path to server config YAML")
	focusSensorID := flag.String("sensor", "", "focus sensor id")
	lookback := flag.Duration("lookback", 24*time.Hour, "how far back to look")
	intervalSeconds := flag.Int64("interval-seconds", 60, "bucket interval seconds")
	topK := flag.Int("top-k", 10, "number of ranked candidates to return")
	flag.Parse()

	if *focusSensorID == "" {
		fmt.Fprintln(os.Stderr, "related-sensors-eval: -sensor is required")
		os.Exit(1)
	}

	logger := telemetry.NewLogger("related-sensors-eval")
	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "related-sensors-eval: load config:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns, Logger: logger})
	if err != nil {
		fmt.Fprintln(os.Stderr, "related-sensors-eval: open postgres pool:", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := telemetry.NewRegistry()
	reader, err := bucketreader.Open(bucketreader.Config{Logger: logger, Reg: reg},
		bucketreader.NewPgTableReader(pool), nil, bucketreader.NewPgSensorKindLookup(pool))
	if err != nil {
		fmt.Fprintln(os.Stderr, "related-sensors-eval: open bucket reader:", err)
		os.Exit(1)
	}

	executor := jobs.NewRelatedSensorsExecutor(jobs.NewPgCandidatePool(pool), reader)

	now := time.Now().UTC()
	params, err := json.Marshal(map[string]any{
		"focus_sensor_id":  *focusSensorID,
		"start":            now.Add(-*lookback).Format(time.RFC3339),
		"end":              now.Format(time.RFC3339),
		"interval_seconds": *intervalSeconds,
		"top_k":            *topK,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "related-sensors-eval: marshal params:", err)
		os.Exit(1)
	}

	result, err := executor(ctx, jobs.Row{ID: "cli", JobType: "related_sensors_v1", Params: params}, stdoutProgress{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "related-sensors-eval: evaluation failed:", err)
		os.Exit(1)
	}

	var pretty map[string]any
	if err := json.Unmarshal(result, &pretty); err == nil {
		encoded, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(encoded))
		return
	}
	fmt.Println(string(result))
}

type stdoutProgress struct{}

func (stdoutProgress) Update(ctx context.Context, progress jobs.Progress) error {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", progress.Phase, progress.Message)
	return nil
}

func (stdoutProgress) CancelRequested(ctx context.Context) (bool, error) { return false, nil }
