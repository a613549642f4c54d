// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metricswriter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farmtelemetry/core/internal/errkind"
)

type fakeUpserter struct {
	mu       sync.Mutex
	batches  [][]Row
	failures int
}

func (f *fakeUpserter) UpsertBatch(ctx context.Context, rows []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errkind.ErrTransient
	}
	cp := append([]Row(nil), rows...)
	f.batches = append(f.batches, cp)
	return nil
}

type fakeAckCoordinator struct {
	mu        sync.Mutex
	committed map[string][]uint64
}

func newFakeAckCoordinator() *fakeAckCoordinator {
	return &fakeAckCoordinator{committed: make(map[string][]uint64)}
}

func (f *fakeAckCoordinator) Committed(nodeMQTTID, streamID string, seqs []uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed[nodeMQTTID+"/"+streamID] = append(f.committed[nodeMQTTID+"/"+streamID], seqs...)
}

func seqPtr(v uint64) *uint64 { return &v }

func TestWriterFlushesOnBatchMaxRows(t *testing.T) {
	up := &fakeUpserter{}
	ack := newFakeAckCoordinator()
	w, err := Open(Config{BatchMaxRows: 3, BatchMaxInterval: time.Hour}, up, ack)
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Enqueue(ctx, Row{SensorID: "s1", Seq: seqPtr(uint64(i + 1)), NodeMQTTID: "n1", StreamID: "st1"}))
	}

	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.batches) == 1 && len(up.batches[0]) == 3
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		ack.mu.Lock()
		defer ack.mu.Unlock()
		return len(ack.committed["n1/st1"]) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestWriterFlushesOnInterval(t *testing.T) {
	up := &fakeUpserter{}
	ack := newFakeAckCoordinator()
	w, err := Open(Config{BatchMaxRows: 100, BatchMaxInterval: 20 * time.Millisecond}, up, ack)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Enqueue(context.Background(), Row{SensorID: "s1", Seq: seqPtr(1), NodeMQTTID: "n1", StreamID: "st1"}))

	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.batches) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	up := &fakeUpserter{failures: 2}
	ack := newFakeAckCoordinator()
	w, err := Open(Config{BatchMaxRows: 1, BatchMaxInterval: time.Hour, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, up, ack)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Enqueue(context.Background(), Row{SensorID: "s1", Seq: seqPtr(1), NodeMQTTID: "n1", StreamID: "st1"}))

	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.batches) == 1
	}, time.Second, 5*time.Millisecond)
}
