// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metricswriter

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/farmtelemetry/core/internal/errkind"
)

// Writer is C4: it accepts rows on a bounded channel, batches them by
// size-or-interval, and upserts each batch via the configured Upserter with
// bounded exponential-backoff retry for transient errors.
type Writer struct {
	cfg     Config
	up      Upserter
	ack     AckCoordinator
	logger  log.Logger
	metrics *writerMetrics

	rowCh chan Row

	closeOnce sync.Once
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// Open starts a Writer's background batch loop.
func Open(cfg Config, up Upserter, ack AckCoordinator) (*Writer, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		cfg:     cfg,
		up:      up,
		ack:     ack,
		logger:  cfg.Logger,
		metrics: newWriterMetrics(cfg.Reg),
		rowCh:   make(chan Row, cfg.QueueSize),
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Enqueue implements ingest.Sink, so a *Writer can be used directly as C3's
// downstream sink. It blocks if the bounded queue is full, applying
// backpressure to the ingest path rather than dropping durable rows.
func (w *Writer) Enqueue(ctx context.Context, row Row) error {
	select {
	case w.rowCh <- row:
		w.metrics.enqueued.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		<-w.doneCh
	})
	return nil
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.doneCh)

	batch := make([]Row, 0, w.cfg.BatchMaxRows)
	var oldestAt time.Time
	timer := time.NewTimer(w.cfg.BatchMaxInterval)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flushWithRetry(ctx, batch)
		batch = batch[:0]
		oldestAt = time.Time{}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case row := <-w.rowCh:
			if len(batch) == 0 {
				oldestAt = time.Now()
				resetTimer(timer, w.cfg.BatchMaxInterval)
			}
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-timer.C:
			if !oldestAt.IsZero() && time.Since(oldestAt) >= w.cfg.BatchMaxInterval {
				flush()
			}
			resetTimer(timer, w.cfg.BatchMaxInterval)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// flushWithRetry upserts one batch, retrying transient failures with
// bounded exponential backoff. Permanent errors drop the batch's ACKs and
// log; the durable spool copy upstream is untouched, so samples are not
// lost, only delayed until the operator fixes the schema.
func (w *Writer) flushWithRetry(ctx context.Context, batch []Row) {
	backoff := w.cfg.BaseBackoff

	for attempt := 0; ; attempt++ {
		err := w.up.UpsertBatch(ctx, batch)
		if err == nil {
			w.metrics.batchesCommitted.Inc()
			w.metrics.rowsCommitted.Add(float64(len(batch)))
			w.notifyAcks(batch)
			return
		}

		if !errors.Is(err, errkind.ErrTransient) || attempt >= w.cfg.MaxRetries {
			level.Error(w.logger).Log("msg", "metrics batch failed permanently", "rows", len(batch), "err", err)
			w.metrics.batchesFailed.Inc()
			return
		}

		w.metrics.retries.Inc()
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
		if backoff > w.cfg.MaxBackoff {
			backoff = w.cfg.MaxBackoff
		}
	}
}

// notifyAcks groups a committed batch by (node_mqtt_id, stream_id) and
// notifies the ACK coordinator, per SPEC_FULL §4.4.
func (w *Writer) notifyAcks(batch []Row) {
	if w.ack == nil {
		return
	}
	type key struct{ node, stream string }
	grouped := make(map[key][]uint64)
	for _, r := range batch {
		if r.Seq == nil {
			continue
		}
		k := key{r.NodeMQTTID, r.StreamID}
		grouped[k] = append(grouped[k], *r.Seq)
	}
	for k, seqs := range grouped {
		w.ack.Committed(k.node, k.stream, seqs)
	}
}
