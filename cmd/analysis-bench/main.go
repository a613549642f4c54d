// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command analysis-bench load-tests a running node-forwarder's ingest
// endpoint and reports latency percentiles, the way the teacher's own
// bench harness compared storage backends.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benmathews/bench"
)

type ingestRequester struct {
	url        string
	sensorID   string
	httpClient *http.Client
	seq        uint64
}

func (r *ingestRequester) Setup() error {
	r.httpClient = &http.Client{Timeout: 5 * time.Second}
	return nil
}

func (r *ingestRequester) Request() error {
	r.seq++
	body, err := json.Marshal([]map[string]any{
		{
			"sensor_id": r.sensorID,
			"ts_ms":     time.Now().UnixMilli(),
			"value":     float64(r.seq % 100),
			"quality":   0,
			"seq":       r.seq,
		},
	})
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Post(r.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("analysis-bench: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (r *ingestRequester) Teardown() error {
	return nil
}

func main() {
	url := flag.String("url", "http://127.0.0.1:8080/v1/samples", "node-forwarder ingest endpoint")
	sensorID := flag.String("sensor", "bench-sensor-1", "sensor id to submit samples under")
	rate := flag.Uint64("rate", 100, "target requests per second")
	duration := flag.Duration("duration", 30*time.Second, "benchmark duration")
	connections := flag.Uint64("connections", 8, "concurrent connections")
	histogramPath := flag.String("histogram", "", "optional path to write an hgrm latency distribution file")
	flag.Parse()

	requester := &ingestRequester{url: *url, sensorID: *sensorID}
	benchmark := bench.NewBenchmark(requester, *rate, *duration, *connections)

	summary, err := benchmark.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "analysis-bench: run failed:", err)
		os.Exit(1)
	}
	fmt.Println(summary)

	if *histogramPath != "" {
		if err := summary.GenerateLatencyDistribution(bench.Logarithmic, *histogramPath); err != nil {
			fmt.Fprintln(os.Stderr, "analysis-bench: write latency distribution:", err)
			os.Exit(1)
		}
	}
}
