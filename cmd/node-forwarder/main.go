// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command node-forwarder runs on a farm node: it accepts POST /v1/samples
// over the durable spool (C1) and best-effort-publishes a live copy
// upstream to the analysis core (C2).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"

	"github.com/farmtelemetry/core/internal/config"
	"github.com/farmtelemetry/core/internal/forwarder"
	"github.com/farmtelemetry/core/internal/spool"
	"github.com/farmtelemetry/core/internal/telemetry"
)

// httpTransport is the forwarder.Transport that ships live samples to the
// analysis core over HTTP. Acked seqs are read only from the JSON body of
// each publish response; the loss-range endpoint's response body is not
// read. It is deliberately simple: the durable spool (C1) is
// the source of truth, so this transport can lose acks or retries without
// any risk of data loss, only of extra re-delivery.
type httpTransport struct {
	baseURL string
	client  *http.Client
	acks    chan uint64
}

func newHTTPTransport(baseURL string) *httpTransport {
	return &httpTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		acks:    make(chan uint64, 4096),
	}
}

func (t *httpTransport) Publish(ctx context.Context, samples []spool.Sample) error {
	body, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/live-samples", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("node-forwarder: upstream publish status %d", resp.StatusCode)
	}
	var acked []uint64
	if err := json.NewDecoder(resp.Body).Decode(&acked); err == nil {
		for _, seq := range acked {
			select {
			case t.acks <- seq:
			default:
			}
		}
	}
	return nil
}

func (t *httpTransport) Acks() <-chan uint64 { return t.acks }

func (t *httpTransport) PublishLossRanges(ctx context.Context, losses []spool.LossRange) error {
	body, err := json.Marshal(losses)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/loss-ranges", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "node-forwarder.yaml", "path to node config YAML")
	flag.Parse()

	logger := telemetry.NewLogger("node-forwarder")
	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}

	reg := telemetry.NewRegistry()

	sp, err := spool.Open(spool.Config{
		Dir:              cfg.SpoolDir,
		SegmentSizeBytes: cfg.SegmentSizeBytes,
		SegmentMaxAge:    cfg.SegmentMaxAge,
		SyncInterval:     cfg.SyncInterval,
		MaxSpoolBytes:    cfg.MaxSpoolBytes,
		KeepFreeBytes:    cfg.KeepFreeBytes,
		Logger:           logger,
		Reg:              reg,
	})
	if err != nil {
		level.Error(logger).Log("msg", "failed to open spool", "err", err)
		os.Exit(1)
	}

	transport := newHTTPTransport(cfg.UpstreamURL)
	fwd, err := forwarder.Open(forwarder.Config{
		LiveQueueSize:         cfg.LiveQueueSize,
		PublishRatePerSecond:  cfg.PublishRatePerSecond,
		MaxBodyBytes:          cfg.MaxBodyBytes,
		ReconnectLossInterval: cfg.ReconnectLossInterval,
		Logger:                logger,
		Reg:                   reg,
	}, sp, transport)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open forwarder", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/samples", fwd)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		if err := telemetry.ServeMetrics(":9464", reg); err != nil && err != http.ErrServerClosed {
			level.Warn(logger).Log("msg", "metrics server exited", "err", err)
		}
	}()

	go func() {
		level.Info(logger).Log("msg", "node-forwarder listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "http server exited", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	level.Info(logger).Log("msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = fwd.Close()
	_ = sp.Close(shutdownCtx)
}
