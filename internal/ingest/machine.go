// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log/level"
)

// Sink is where the ingest machine hands off emitted samples: the metrics
// writer (C4).
type Sink interface {
	Enqueue(ctx context.Context, row MetricRow) error
}

// LossRangeHandler receives loss-range notifications forwarded upstream to
// the ACK coordinator.
type LossRangeHandler interface {
	HandleLossRange(ctx context.Context, nodeMQTTID, streamID string, start, end uint64, droppedAt time.Time, reason string)
}

// Machine is C3: the per-sample ingest state machine. One Machine instance
// serves an entire fleet; per-sensor state (averager, COV) is kept in
// plain maps guarded by a single mutex, since sample arrival rate here
// (per farm) never approaches a scale where that mutex is a bottleneck.
type Machine struct {
	cfg     Config
	meta    MetadataStore
	live    LivenessStore
	sink    Sink
	lossH   LossRangeHandler
	metrics *ingestMetrics
	nodes   *nodeResolver

	mu         sync.Mutex
	averagers  map[string]*rollingAverager
	covStates  map[string]*covState

	predictiveCh chan MetricRow
}

// New constructs a Machine. sink is required; live and lossH may be nil for
// callers that only need sample reduction without liveness tracking.
func New(cfg Config, meta MetadataStore, live LivenessStore, sink Sink, lossH LossRangeHandler) (*Machine, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:       cfg,
		meta:      meta,
		live:      live,
		sink:      sink,
		lossH:     lossH,
		metrics:   newIngestMetrics(cfg.Reg),
		nodes:     newNodeResolver(meta),
		averagers: make(map[string]*rollingAverager),
		covStates: make(map[string]*covState),
	}
	if cfg.EnablePredictiveFeed {
		m.predictiveCh = make(chan MetricRow, cfg.PredictiveFeedSize)
	}
	return m, nil
}

// PredictiveFeed returns the best-effort fan-out channel for downstream
// forecasting collaborators, or nil if disabled.
func (m *Machine) PredictiveFeed() <-chan MetricRow {
	return m.predictiveCh
}

// Handle processes one inbound MetricRow per SPEC_FULL §4.3's ordered
// behaviors: metadata lookup, liveness touch, rolling-average/COV
// reduction, and sink dispatch.
func (m *Machine) Handle(ctx context.Context, row MetricRow) error {
	meta, found, err := m.meta.SensorByID(ctx, row.SensorID)
	if err != nil {
		return err
	}
	if !found || meta.Deleted || !meta.PollEnabled {
		m.metrics.dropped.Inc()
		return nil
	}

	if m.live != nil {
		wasOffline, err := m.live.TouchSensor(ctx, row.SensorID, row.Ts)
		if err != nil {
			level.Warn(m.cfg.Logger).Log("msg", "touch sensor failed", "sensor_id", row.SensorID, "err", err)
		} else if wasOffline {
			m.metrics.sensorsRecovered.Inc()
		}
		if meta.NodeID != "" {
			if wasOfflineNode, err := m.live.TouchNode(ctx, meta.NodeID, row.Ts, false); err == nil && wasOfflineNode {
				m.metrics.nodesRecovered.Inc()
			}
		}
	}

	if meta.RollingAvgSecs > 0 {
		return m.handleRollingAverage(ctx, meta, row)
	}
	if meta.IsCOV() {
		return m.handleCOV(ctx, meta, row)
	}
	return m.emit(ctx, row)
}

func (m *Machine) handleRollingAverage(ctx context.Context, meta SensorMeta, row MetricRow) error {
	m.mu.Lock()
	avgr, ok := m.averagers[row.SensorID]
	if !ok {
		avgr = newRollingAverager(meta.RollingAvgSecs)
		m.averagers[row.SensorID] = avgr
	}
	emittedTs, avg, quality, emitted := avgr.observe(row.Ts, row.Value, row.Quality)
	m.mu.Unlock()

	if !emitted {
		return nil
	}
	return m.emit(ctx, MetricRow{
		SensorID: row.SensorID,
		Ts:       emittedTs,
		Value:    avg,
		Quality:  quality,
		Source:   row.Source,
	})
}

func (m *Machine) handleCOV(ctx context.Context, meta SensorMeta, row MetricRow) error {
	m.mu.Lock()
	st, ok := m.covStates[row.SensorID]
	if !ok {
		st = &covState{}
		m.covStates[row.SensorID] = st
	}
	suppress := st.shouldSuppress(row.Value, row.Quality, m.cfg.CovTolerance)
	if !suppress {
		st.record(row.Value, row.Quality)
	}
	m.mu.Unlock()

	if suppress {
		// Still count as processed: the upstream seq is ACKed by the spool
		// independently of whether we emit downstream.
		m.metrics.covSuppressed.Inc()
		return nil
	}
	return m.emit(ctx, row)
}

func (m *Machine) emit(ctx context.Context, row MetricRow) error {
	if err := m.sink.Enqueue(ctx, row); err != nil {
		return err
	}
	m.metrics.emitted.Inc()

	if m.predictiveCh != nil {
		select {
		case m.predictiveCh <- row:
		default:
			// Full channel: drop the oldest pending item rather than the
			// ingest path, per SPEC_FULL §4.3.
			select {
			case <-m.predictiveCh:
			default:
			}
			select {
			case m.predictiveCh <- row:
			default:
			}
		}
	}
	return nil
}

// HandleLossRange forwards a spool-reported loss range to the ACK
// coordinator.
func (m *Machine) HandleLossRange(ctx context.Context, nodeMQTTID, streamID string, start, end uint64, droppedAt time.Time, reason string) {
	if m.lossH == nil {
		return
	}
	m.lossH.HandleLossRange(ctx, nodeMQTTID, streamID, start, end, droppedAt, reason)
}

// ResolveNode runs the node UUID resolution chain (SPEC_FULL §4.3).
func (m *Machine) ResolveNode(ctx context.Context, nodeMQTTID, macHint string) (string, bool, error) {
	return m.nodes.resolve(ctx, nodeMQTTID, macHint)
}

// EmitNodeHealth synthesizes and enqueues node-health samples.
func (m *Machine) EmitNodeHealth(ctx context.Context, nodeID string, readings []NodeHealthReading) error {
	rows, err := m.emitNodeHealth(ctx, nodeID, readings)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := m.emit(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
