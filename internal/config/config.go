// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package config loads the YAML configuration documents each command-line
// entrypoint reads at startup, using gopkg.in/yaml.v3 the way the teacher
// loads its own structured configuration. Component-level defaulting still
// lives in each component's own Config.applyDefaultsAndValidate; this
// package only owns the on-disk document shape and env var overrides for
// secrets that should never live in a checked-in file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig is read by cmd/node-forwarder: the on-farm side that owns the
// durable spool and the outbound link to the analysis core.
type NodeConfig struct {
	SpoolDir             string        `yaml:"spool_dir"`
	SegmentSizeBytes      int64         `yaml:"segment_size_bytes"`
	SegmentMaxAge         time.Duration `yaml:"segment_max_age"`
	SyncInterval          time.Duration `yaml:"sync_interval"`
	MaxSpoolBytes         uint64        `yaml:"max_spool_bytes"`
	KeepFreeBytes         uint64        `yaml:"keep_free_bytes"`

	ListenAddr            string        `yaml:"listen_addr"`
	LiveQueueSize         int           `yaml:"live_queue_size"`
	PublishRatePerSecond  float64       `yaml:"publish_rate_per_second"`
	MaxBodyBytes          int64         `yaml:"max_body_bytes"`
	ReconnectLossInterval time.Duration `yaml:"reconnect_loss_interval"`

	UpstreamURL string `yaml:"upstream_url"`
}

// ServerConfig is read by cmd/telemetry-sidecar, cmd/lake-replicator,
// cmd/analysis-worker, and cmd/related-sensors-eval: the central side that owns Postgres, the
// analysis lake, and the job runner.
type ServerConfig struct {
	PostgresDSN     string        `yaml:"postgres_dsn"`
	PostgresMaxConns int32        `yaml:"postgres_max_conns"`

	LakeRoot                string        `yaml:"lake_root"`
	LakeColdRoot            string        `yaml:"lake_cold_root"`
	LakeDataset             string        `yaml:"lake_dataset"`
	LakeReplicationLag      time.Duration `yaml:"lake_replication_lag"`
	LakeLateWindow          time.Duration `yaml:"lake_late_window"`
	LakeTickInterval        time.Duration `yaml:"lake_tick_interval"`

	MetricsBatchMaxRows     int           `yaml:"metrics_batch_max_rows"`
	MetricsBatchMaxInterval time.Duration `yaml:"metrics_batch_max_interval"`

	AlarmStateDBPath string `yaml:"alarm_state_db_path"`

	JobPollInterval time.Duration `yaml:"job_poll_interval"`
	JobMaxParallel  int           `yaml:"job_max_parallel"`

	MetricsListenAddr string `yaml:"metrics_listen_addr"`
}

// LoadNode reads and parses a NodeConfig document from path. The upstream
// URL may come from the FARM_UPSTREAM_URL environment variable instead, so
// credentials never need to sit in a
// checked-in file, mirroring how the teacher keeps secrets out of its own
// config structs.
func LoadNode(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadYAML(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	if v := os.Getenv("FARM_UPSTREAM_URL"); v != "" {
		cfg.UpstreamURL = v
	}
	return cfg, nil
}

// LoadServer reads and parses a ServerConfig document from path.
func LoadServer(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if v := os.Getenv("FARM_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	return cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
