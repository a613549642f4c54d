// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package forwarder implements C2: a local HTTP intake endpoint backed by
// the durable spool, plus a best-effort live-publish path to a transport
// client that tolerates backpressure by dropping the live copy and never
// the durable one.
package forwarder

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/farmtelemetry/core/internal/spool"
)

// Transport is the outbound link to the ingest side (e.g. an MQTT or gRPC
// client). It is supplied by the caller; the forwarder never constructs one
// itself, mirroring how the spool never reaches outside its own directory.
type Transport interface {
	// Publish best-effort-delivers a batch of samples. Returning an error
	// just stops that batch from being counted as live-delivered; the
	// durable copy in the spool is unaffected.
	Publish(ctx context.Context, samples []spool.Sample) error

	// Acks returns a channel of seq numbers the remote end has durably
	// accepted, so the local spool can advance its own ack watermark.
	Acks() <-chan uint64

	// PublishLossRanges reports spool-side loss to the remote end so it can
	// advance its own consumer past the gap instead of waiting forever.
	PublishLossRanges(ctx context.Context, losses []spool.LossRange) error
}

// Config configures a Forwarder.
type Config struct {
	// LiveQueueSize bounds the best-effort live-publish channel. Zero means
	// DefaultLiveQueueSize.
	LiveQueueSize int

	// PublishRatePerSecond caps how many live-publish batches per second are
	// sent to the Transport, smoothing bursts. Zero means unlimited.
	PublishRatePerSecond float64

	// MaxBodyBytes bounds the decoded size of a POST /samples request body.
	// Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// ReconnectLossInterval is how often pending loss ranges are re-announced
	// to the transport so a reconnecting consumer eventually sees them. Zero
	// means DefaultReconnectLossInterval.
	ReconnectLossInterval time.Duration

	Logger log.Logger
	Reg    prometheus.Registerer
}

const (
	DefaultLiveQueueSize         = 1024
	DefaultMaxBodyBytes          = 4 << 20
	DefaultReconnectLossInterval = 30 * time.Second
)

func (c *Config) applyDefaultsAndValidate() error {
	if c.LiveQueueSize <= 0 {
		c.LiveQueueSize = DefaultLiveQueueSize
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ReconnectLossInterval <= 0 {
		c.ReconnectLossInterval = DefaultReconnectLossInterval
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Reg == nil {
		c.Reg = prometheus.NewRegistry()
	}
	return nil
}

// Forwarder bridges HTTP intake and a durable spool to a best-effort live
// transport. The zero value is not usable; construct with Open.
type Forwarder struct {
	cfg     Config
	sp      *spool.Spool
	tr      Transport
	logger  log.Logger
	metrics *forwarderMetrics
	limiter *rate.Limiter

	liveCh chan spool.Sample

	closeOnce sync.Once
	doneCh    chan struct{}
	cancel    context.CancelFunc
}

// Open wires a Forwarder around an already-open spool and a transport
// client, and starts its background publish/ack/reconnect-loss loops.
func Open(cfg Config, sp *spool.Spool, tr Transport) (*Forwarder, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.PublishRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PublishRatePerSecond), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Forwarder{
		cfg:     cfg,
		sp:      sp,
		tr:      tr,
		logger:  cfg.Logger,
		metrics: newForwarderMetrics(cfg.Reg),
		limiter: limiter,
		liveCh:  make(chan spool.Sample, cfg.LiveQueueSize),
		doneCh:  make(chan struct{}),
		cancel:  cancel,
	}

	go f.runPublishLoop(ctx)
	go f.runAckLoop(ctx)
	go f.runLossAnnounceLoop(ctx)

	return f, nil
}

// Close stops the background loops. It does not close the underlying spool,
// which the caller owns.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		f.cancel()
		close(f.doneCh)
	})
	return nil
}

// offerLive enqueues a sample for best-effort live publish. A full queue
// drops the sample and counts it, never blocking the durable write path.
func (f *Forwarder) offerLive(s spool.Sample) {
	select {
	case f.liveCh <- s:
	default:
		f.metrics.liveDropped.Inc()
	}
}

func (f *Forwarder) runPublishLoop(ctx context.Context) {
	const batchWindow = 100 * time.Millisecond
	batch := make([]spool.Sample, 0, 256)
	ticker := time.NewTicker(batchWindow)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := f.tr.Publish(ctx, batch); err != nil {
			level.Warn(f.logger).Log("msg", "live publish failed", "err", err, "count", len(batch))
			f.metrics.publishErrors.Inc()
		} else {
			f.metrics.publishedLive.Add(float64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-f.liveCh:
			batch = append(batch, s)
			if len(batch) >= cap(batch) {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (f *Forwarder) runAckLoop(ctx context.Context) {
	acks := f.tr.Acks()
	for {
		select {
		case <-ctx.Done():
			return
		case seq, ok := <-acks:
			if !ok {
				return
			}
			if err := f.sp.Ack(ctx, seq); err != nil {
				level.Warn(f.logger).Log("msg", "ack forwarding failed", "seq", seq, "err", err)
				continue
			}
			f.metrics.acksForwarded.Inc()
		}
	}
}

// runLossAnnounceLoop periodically re-announces pending loss ranges so a
// reconnecting consumer can advance its own ack watermark past a gap it
// never saw while disconnected.
func (f *Forwarder) runLossAnnounceLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.ReconnectLossInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			losses, err := f.sp.PendingLossRanges(ctx)
			if err != nil || len(losses) == 0 {
				continue
			}
			if err := f.tr.PublishLossRanges(ctx, losses); err != nil {
				level.Warn(f.logger).Log("msg", "loss range announce failed", "err", err)
				continue
			}
			f.metrics.lossRangesAnnounced.Add(float64(len(losses)))
		}
	}
}
