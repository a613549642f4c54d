// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package pgstore builds the shared pgx connection pool every Postgres-
// backed component (C4, C5, C8) opens against, so pool sizing, statement
// logging, and error classification stay in one place instead of being
// re-derived per component.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/farmtelemetry/core/internal/errkind"
)

type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	Logger          log.Logger
}

const (
	DefaultMaxConns        = 16
	DefaultMaxConnLifetime = time.Hour
	DefaultMaxConnIdleTime = 10 * time.Minute
)

func (c *Config) applyDefaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
}

// Open builds a pgxpool.Pool configured from cfg, with query-level tracing
// routed through the component's go-kit logger.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	cfg.applyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   logFuncAdapter{cfg.Logger},
		LogLevel: tracelog.LogLevelWarn,
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type logFuncAdapter struct{ logger log.Logger }

func (a logFuncAdapter) Log(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]interface{}) {
	keyvals := make([]interface{}, 0, 2+2*len(data))
	keyvals = append(keyvals, "msg", msg)
	for k, v := range data {
		keyvals = append(keyvals, k, v)
	}
	switch lvl {
	case tracelog.LogLevelError:
		level.Error(a.logger).Log(keyvals...)
	case tracelog.LogLevelWarn:
		level.Warn(a.logger).Log(keyvals...)
	default:
		level.Debug(a.logger).Log(keyvals...)
	}
}

// ClassifyError maps a pgx/pgconn error to errkind.ErrTransient when the
// failure class is one retrying is expected to clear (connection exception
// class 08, transaction rollback class 40), leaving everything else as-is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08", "40":
			return errkind.ErrTransient
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.ErrTransient
	}
	return err
}
