// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package spool implements the on-node durable sample spool: a single-writer,
// segmented, CRC-framed append-only log per stream, with sensor-id interning,
// cap-enforced eviction, and loss-range tracking for evicted unacked data.
package spool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/farmtelemetry/core/internal/errkind"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

// Spool is a durable, append-only sample log for a single stream. All
// mutating operations are serialized through a single command channel
// processed by one goroutine (§5): there are no locks on spool state.
type Spool struct {
	cfg    Config
	logger log.Logger
	metrics *spoolMetrics

	cmdCh  chan any
	doneCh chan struct{}
}

type cmdAppend struct {
	samples []Sample
	reply   chan appendReply
}

type appendReply struct {
	result AppendResult
	err    error
}

type cmdAck struct {
	ackedSeq uint64
	reply    chan error
}

type cmdStatus struct {
	reply chan Status
}

type cmdReadFrom struct {
	fromSeq  uint64
	maxCount int
	reply    chan readReply
}

type readReply struct {
	samples []Sample
	err     error
}

type cmdLossRanges struct {
	reply chan []LossRange
}

type cmdClose struct {
	reply chan error
}

// runState is the writer goroutine's private, unshared mutable state. It is
// never touched outside the run loop.
type runState struct {
	streamID uuid.UUID
	nextSeq  uint64
	ackedSeq uint64
	losses   []LossRange

	index *sensorIndex

	closed     []segmentFileInfo // sealed segments, sorted by StartSeq asc
	open       *segmentWriter
	spoolBytes uint64
}

// Open opens or creates the spool directory dir, recovering any existing
// state and segments (§4.1 recovery).
func Open(cfg Config, opts ...Option) (*Spool, error) {
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: creating dir: %w", err)
	}

	rs, err := recover_(cfg)
	if err != nil {
		return nil, err
	}

	s := &Spool{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: newSpoolMetrics(cfg.Reg),
		cmdCh:   make(chan any, 64),
		doneCh:  make(chan struct{}),
	}
	go s.run(rs)
	return s, nil
}

func recover_(cfg Config) (*runState, error) {
	persisted, found, err := loadState(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("spool: %w: %v", errkind.ErrCorrupt, err)
	}
	if !found {
		persisted = newStreamState()
		if err := persistState(cfg.Dir, persisted); err != nil {
			return nil, err
		}
	}

	idx, err := loadSensorIndex(cfg.Dir)
	if err != nil {
		return nil, err
	}

	segs, err := listSegments(cfg.Dir, persisted.StreamID)
	if err != nil {
		return nil, err
	}

	rs := &runState{
		streamID: persisted.StreamID,
		nextSeq:  persisted.NextSeq,
		ackedSeq: persisted.AckedSeq,
		losses:   persisted.Losses,
		index:    idx,
	}

	var openInfo *segmentFileInfo
	for i := range segs {
		if segs[i].Sealed {
			rs.closed = append(rs.closed, segs[i])
			rs.spoolBytes += uint64(segs[i].SizeBytes)
		} else {
			oi := segs[i]
			openInfo = &oi
		}
	}
	sort.Slice(rs.closed, func(i, j int) bool { return rs.closed[i].StartSeq < rs.closed[j].StartSeq })

	if openInfo != nil {
		sw, err := recoverSegment(openInfo.Path)
		if err != nil {
			return nil, err
		}
		rs.open = sw
		rs.spoolBytes += uint64(sw.size)
		if sw.nextSeq > rs.nextSeq {
			rs.nextSeq = sw.nextSeq
		}
	} else {
		sw, err := createSegment(cfg.Dir, rs.streamID, rs.nextSeq, time.Now())
		if err != nil {
			return nil, err
		}
		rs.open = sw
		rs.spoolBytes += uint64(sw.size)
	}

	return rs, nil
}

func (s *Spool) run(rs *runState) {
	defer close(s.doneCh)
	for cmd := range s.cmdCh {
		switch c := cmd.(type) {
		case cmdAppend:
			res, err := s.handleAppend(rs, c.samples)
			c.reply <- appendReply{result: res, err: err}
		case cmdAck:
			err := s.handleAck(rs, c.ackedSeq)
			c.reply <- err
		case cmdStatus:
			c.reply <- s.handleStatus(rs)
		case cmdReadFrom:
			samples, err := s.handleReadFrom(rs, c.fromSeq, c.maxCount)
			c.reply <- readReply{samples: samples, err: err}
		case cmdLossRanges:
			out := make([]LossRange, len(rs.losses))
			copy(out, rs.losses)
			c.reply <- out
		case cmdClose:
			err := s.handleClose(rs)
			c.reply <- err
			return
		}
	}
}

func (s *Spool) send(ctx context.Context, cmd any) error {
	select {
	case s.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return errkind.ErrClosed
	}
}

// Append assigns sequence numbers and durably writes samples, returning once
// they are on disk (and fsynced, subject to SyncInterval coalescing).
func (s *Spool) Append(ctx context.Context, samples []Sample) (AppendResult, error) {
	reply := make(chan appendReply, 1)
	if err := s.send(ctx, cmdAppend{samples: samples, reply: reply}); err != nil {
		return AppendResult{}, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return AppendResult{}, ctx.Err()
	}
}

// Ack advances the acknowledged sequence number. It never regresses: an ack
// for a seq less than or equal to the current acked_seq is a no-op.
func (s *Spool) Ack(ctx context.Context, ackedSeq uint64) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, cmdAck{ackedSeq: ackedSeq, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of current capacity and backlog.
func (s *Spool) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := s.send(ctx, cmdStatus{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// ReadFrom returns up to maxCount samples starting at fromSeq (inclusive),
// used by the forwarder to replay backlog after reconnect. It is not part of
// the spec's minimal contract but is required to satisfy the round-trip
// testable property in §8 and C2's replay behavior.
func (s *Spool) ReadFrom(ctx context.Context, fromSeq uint64, maxCount int) ([]Sample, error) {
	reply := make(chan readReply, 1)
	if err := s.send(ctx, cmdReadFrom{fromSeq: fromSeq, maxCount: maxCount, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.samples, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PendingLossRanges returns the loss ranges currently retained in state
// (not yet acknowledged past).
func (s *Spool) PendingLossRanges(ctx context.Context) ([]LossRange, error) {
	reply := make(chan []LossRange, 1)
	if err := s.send(ctx, cmdLossRanges{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close fsyncs and closes the open segment's file handle (the segment is not
// sealed or renamed) and stops the writer goroutine.
func (s *Spool) Close(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, cmdClose{reply: reply}); err != nil {
		if err == errkind.ErrClosed {
			return nil
		}
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Spool) handleAppend(rs *runState, samples []Sample) (AppendResult, error) {
	if len(samples) == 0 {
		return AppendResult{}, nil
	}

	recs := make([]record, len(samples))
	firstSeq := rs.nextSeq
	for i, sm := range samples {
		idx, err := rs.index.indexFor(sm.SensorID)
		if err != nil {
			return AppendResult{}, fmt.Errorf("spool: interning sensor id: %w", err)
		}
		seq := rs.nextSeq
		recs[i] = record{
			SensorIndex: idx,
			Seq:         seq,
			TSMs:        sm.Timestamp.UnixMilli(),
			Value:       sm.Value,
			Quality:     sm.Quality,
			TimeQuality: uint16(sm.TimeQuality),
			MonotonicMs: sm.MonotonicMs,
		}
		rs.nextSeq++
	}

	n, err := rs.open.append(recs)
	if err != nil {
		return AppendResult{}, fmt.Errorf("spool: writing frames: %w", err)
	}
	rs.spoolBytes += uint64(n)
	s.metrics.appends.Inc()
	s.metrics.samplesWritten.Add(float64(len(recs)))
	s.metrics.bytesWritten.Add(float64(n))

	if time.Since(rs.open.lastSync) >= s.cfg.SyncInterval {
		if err := rs.open.sync(); err != nil {
			return AppendResult{}, fmt.Errorf("spool: fsync: %w", err)
		}
	}

	if err := s.maybeRoll(rs); err != nil {
		return AppendResult{}, err
	}
	if err := s.enforceCaps(rs); err != nil {
		level.Error(s.logger).Log("msg", "cap enforcement failed", "err", err)
	}

	if err := persistState(s.cfg.Dir, rs.persistedState()); err != nil {
		return AppendResult{}, fmt.Errorf("spool: persisting state: %w", err)
	}

	return AppendResult{AcceptedCount: len(samples), FirstSeq: firstSeq, LastSeq: rs.nextSeq - 1}, nil
}

func (s *Spool) maybeRoll(rs *runState) error {
	sizeNow := rs.open.size - segmentHeaderLen
	age := time.Since(time.UnixMilli(rs.open.header.CreatedWallMs))
	if sizeNow < s.cfg.SegmentSizeBytes && age < s.cfg.SegmentMaxAge {
		return nil
	}
	if rs.open.nextSeq == rs.open.header.StartSeq {
		return nil // nothing written yet; don't roll an empty segment
	}

	endSeq := rs.open.nextSeq - 1
	newPath, err := rs.open.seal(s.cfg.Dir, endSeq)
	if err != nil {
		return fmt.Errorf("spool: sealing segment: %w", err)
	}
	info, err := os.Stat(newPath)
	if err != nil {
		return err
	}
	rs.closed = append(rs.closed, segmentFileInfo{
		Path: newPath, StreamID: rs.streamID,
		StartSeq: rs.open.header.StartSeq, EndSeq: endSeq, Sealed: true,
		SizeBytes: info.Size(), ModTime: info.ModTime(),
	})
	s.metrics.segmentRotations.Inc()

	sw, err := createSegment(s.cfg.Dir, rs.streamID, rs.nextSeq, time.Now())
	if err != nil {
		return fmt.Errorf("spool: creating next segment: %w", err)
	}
	rs.open = sw
	return nil
}

func (s *Spool) handleAck(rs *runState, ackedSeq uint64) error {
	if ackedSeq <= rs.ackedSeq {
		return nil // never regresses; idempotent per §8
	}
	if ackedSeq > rs.nextSeq-1 && rs.nextSeq > 0 {
		ackedSeq = rs.nextSeq - 1
	}
	rs.ackedSeq = ackedSeq

	s.pruneAcked(rs)
	if err := s.enforceCaps(rs); err != nil {
		level.Error(s.logger).Log("msg", "cap enforcement failed", "err", err)
	}

	return persistState(s.cfg.Dir, rs.persistedState())
}

// pruneAcked deletes closed segments that are fully covered by the ack, with
// no loss (§4.1 step 4).
func (s *Spool) pruneAcked(rs *runState) {
	kept := rs.closed[:0]
	for _, seg := range rs.closed {
		if seg.EndSeq <= rs.ackedSeq {
			if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
				level.Error(s.logger).Log("msg", "failed to delete acked segment", "path", seg.Path, "err", err)
			}
			rs.spoolBytes -= uint64(seg.SizeBytes)
			continue
		}
		kept = append(kept, seg)
	}
	rs.closed = kept

	rs.pruneLossesState(rs.ackedSeq)
}

func (rs *runState) pruneLossesState(ackedSeq uint64) {
	kept := rs.losses[:0]
	for _, l := range rs.losses {
		if l.End > ackedSeq {
			kept = append(kept, l)
		}
	}
	rs.losses = kept
}

// enforceCaps evicts the oldest closed segments while the spool is over its
// byte cap or under its free-space floor (§4.1).
func (s *Spool) enforceCaps(rs *runState) error {
	cap, free, err := s.cfg.effectiveCap()
	if err != nil {
		return err
	}

	for len(rs.closed) > 0 && (rs.spoolBytes > cap || free < s.cfg.KeepFreeBytes) {
		victim := rs.closed[0]
		rs.closed = rs.closed[1:]
		if err := os.Remove(victim.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("evicting segment %s: %w", victim.Path, err)
		}
		rs.spoolBytes -= uint64(victim.SizeBytes)
		free += uint64(victim.SizeBytes)
		s.metrics.segmentsEvicted.WithLabelValues("cap").Inc()

		if victim.EndSeq > rs.ackedSeq {
			rs.addLoss(victim.StartSeq, victim.EndSeq, time.Now())
			s.metrics.lossRanges.Inc()
		}
	}

	if s.cfg.MaxSegmentAge > 0 {
		cutoff := time.Now().Add(-s.cfg.MaxSegmentAge)
		kept := rs.closed[:0]
		for _, seg := range rs.closed {
			if seg.ModTime.Before(cutoff) {
				if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("evicting aged segment %s: %w", seg.Path, err)
				}
				rs.spoolBytes -= uint64(seg.SizeBytes)
				s.metrics.segmentsEvicted.WithLabelValues("max_age").Inc()
				if seg.EndSeq > rs.ackedSeq {
					rs.addLoss(seg.StartSeq, seg.EndSeq, time.Now())
					s.metrics.lossRanges.Inc()
				}
				continue
			}
			kept = append(kept, seg)
		}
		rs.closed = kept
	}

	return nil
}

// addLoss is the runState-level equivalent of persistedState.addLoss,
// applying the same clamp-to-acked rule.
func (rs *runState) addLoss(start, end uint64, now time.Time) {
	ps := persistedState{AckedSeq: rs.ackedSeq, Losses: rs.losses}
	ps.addLoss(start, end, now)
	rs.losses = ps.Losses
}

func (s *Spool) handleStatus(rs *runState) Status {
	cap, free, err := s.cfg.effectiveCap()
	if err != nil {
		level.Error(s.logger).Log("msg", "computing cap for status", "err", err)
	}

	backlog := uint64(0)
	if rs.nextSeq > rs.ackedSeq+1 {
		backlog = rs.nextSeq - rs.ackedSeq - 1
	}
	s.metrics.backlogSamples.Set(float64(backlog))
	s.metrics.spoolBytesUsed.Set(float64(rs.spoolBytes))

	return Status{
		StreamID:       rs.streamID,
		NextSeq:        rs.nextSeq,
		AckedSeq:       rs.ackedSeq,
		BacklogSamples: backlog,
		SpoolBytes:     rs.spoolBytes,
		CapBytes:       cap,
		FreeBytes:      free,
		LossesPending:  len(rs.losses),
		OpenSegments:   1,
		ClosedSegments: len(rs.closed),
	}
}

func (s *Spool) handleReadFrom(rs *runState, fromSeq uint64, maxCount int) ([]Sample, error) {
	if maxCount <= 0 {
		maxCount = 1 << 20
	}
	var out []Sample

	readSeg := func(path string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		hbuf := make([]byte, segmentHeaderLen)
		if _, err := f.ReadAt(hbuf, 0); err != nil {
			return err
		}
		offset := int64(segmentHeaderLen)
		fhBuf := make([]byte, frameHeaderLen)
		for {
			if len(out) >= maxCount {
				return nil
			}
			n, _ := f.ReadAt(fhBuf, offset)
			if n < frameHeaderLen {
				return nil
			}
			fh, err := decodeFrameHeader(fhBuf)
			if err != nil {
				return nil
			}
			payload := make([]byte, fh.Len)
			pn, _ := f.ReadAt(payload, offset+frameHeaderLen)
			if pn < len(payload) {
				return nil
			}
			if err := verifyFrame(fh, payload); err != nil {
				return nil
			}
			rec, err := decodeRecord(payload)
			if err != nil {
				return nil
			}
			offset += frameHeaderLen + int64(fh.Len)

			if rec.Seq >= fromSeq {
				sensorID, ok := rs.index.sensorFor(rec.SensorIndex)
				if !ok {
					continue
				}
				out = append(out, Sample{
					SensorID:    sensorID,
					Timestamp:   time.UnixMilli(rec.TSMs),
					Value:       rec.Value,
					Quality:     rec.Quality,
					Seq:         rec.Seq,
					StreamID:    rs.streamID,
					TimeQuality: TimeQuality(rec.TimeQuality),
					MonotonicMs: rec.MonotonicMs,
				})
			}
		}
	}

	for _, seg := range rs.closed {
		if seg.EndSeq < fromSeq {
			continue
		}
		if err := readSeg(seg.Path); err != nil {
			return out, err
		}
		if len(out) >= maxCount {
			return out, nil
		}
	}
	if rs.open != nil {
		if err := readSeg(rs.open.path); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Spool) handleClose(rs *runState) error {
	if rs.open != nil {
		if err := rs.open.sync(); err != nil {
			return err
		}
		return rs.open.close()
	}
	return nil
}

func (rs *runState) persistedState() persistedState {
	return persistedState{
		StreamID: rs.streamID,
		NextSeq:  rs.nextSeq,
		AckedSeq: rs.ackedSeq,
		Losses:   rs.losses,
	}
}
