// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command telemetry-sidecar runs the analysis-core side of the live
// transport: it receives samples and loss-range reports from node-forwarder
// instances (C2) and feeds them through the ingest state machine (C3) into
// the metrics writer (C4).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/farmtelemetry/core/internal/config"
	"github.com/farmtelemetry/core/internal/ingest"
	"github.com/farmtelemetry/core/internal/metricswriter"
	"github.com/farmtelemetry/core/internal/pgstore"
	"github.com/farmtelemetry/core/internal/telemetry"
)

// loggingLossHandler records loss-range reports to the structured logger.
// Nothing in this binary recovers the dropped samples; this handler's only
// job is visibility.
type loggingLossHandler struct{ logger log.Logger }

func (h loggingLossHandler) HandleLossRange(ctx context.Context, nodeMQTTID, streamID string, start, end uint64, droppedAt time.Time, reason string) {
	level.Warn(h.logger).Log("msg", "loss range reported", "node", nodeMQTTID, "stream", streamID,
		"start_seq", start, "end_seq", end, "dropped_at", droppedAt, "reason", reason)
}

// ackRelay implements metricswriter.AckCoordinator by discarding acks: the
// node-forwarder transport here doesn't retain per-seq acknowledgement
// state, since loss is already tolerated end to end by the durable spool.
type ackRelay struct{}

func (ackRelay) Committed(nodeMQTTID, streamID string, seqs []uint64) {}

func main() {
	configPath := flag.String("config", "telemetry-sidecar.yaml", "path to server config YAML")
	flag.Parse()

	logger := telemetry.NewLogger("telemetry-sidecar")
	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns, Logger: logger})
	if err != nil {
		level.Error(logger).Log("msg", "failed to open postgres pool", "err", err)
		os.Exit(1)
	}

	reg := telemetry.NewRegistry()
	writer, err := metricswriter.Open(metricswriter.Config{
		BatchMaxRows:     cfg.MetricsBatchMaxRows,
		BatchMaxInterval: cfg.MetricsBatchMaxInterval,
		Logger:           logger,
		Reg:              reg,
	}, metricswriter.NewPgUpserter(pool), ackRelay{})
	if err != nil {
		level.Error(logger).Log("msg", "failed to open metrics writer", "err", err)
		os.Exit(1)
	}

	machine, err := ingest.New(ingest.Config{Logger: logger, Reg: reg},
		ingest.NewPgMetadataStore(pool), ingest.NewPgLivenessStore(pool), writer, loggingLossHandler{logger: logger})
	if err != nil {
		level.Error(logger).Log("msg", "failed to open ingest machine", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/live-samples", func(w http.ResponseWriter, r *http.Request) {
		var samples []ingest.MetricRow
		if err := json.NewDecoder(r.Body).Decode(&samples); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		acked := make([]uint64, 0, len(samples))
		for _, s := range samples {
			if err := machine.Handle(r.Context(), s); err != nil {
				level.Warn(logger).Log("msg", "handle sample failed", "sensor_id", s.SensorID, "err", err)
				continue
			}
			if s.Seq != nil {
				acked = append(acked, *s.Seq)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(acked)
	})
	mux.HandleFunc("/v1/loss-ranges", func(w http.ResponseWriter, r *http.Request) {
		var losses []struct {
			NodeMQTTID string    `json:"node_mqtt_id"`
			StreamID   string    `json:"stream_id"`
			Start      uint64    `json:"start_seq"`
			End        uint64    `json:"end_seq"`
			DroppedAt  time.Time `json:"dropped_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&losses); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		for _, l := range losses {
			machine.HandleLossRange(r.Context(), l.NodeMQTTID, l.StreamID, l.Start, l.End, l.DroppedAt, "forwarder_gap")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{Addr: cfg.MetricsListenAddr, Handler: mux}

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(ingest.DefaultSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case now := <-ticker.C:
				if err := machine.RunOfflineSweep(sweepCtx, now); err != nil {
					level.Warn(logger).Log("msg", "offline sweep failed", "err", err)
				}
			}
		}
	}()

	go func() {
		level.Info(logger).Log("msg", "telemetry-sidecar listening", "addr", cfg.MetricsListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "http server exited", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	level.Info(logger).Log("msg", "shutting down")
	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = writer.Close()
	pool.Close()
}
