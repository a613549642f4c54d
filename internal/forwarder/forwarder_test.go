// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farmtelemetry/core/internal/spool"
)

type fakeTransport struct {
	mu        sync.Mutex
	published []spool.Sample
	acks      chan uint64
	losses    []spool.LossRange
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{acks: make(chan uint64, 8)}
}

func (f *fakeTransport) Publish(ctx context.Context, samples []spool.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, samples...)
	return nil
}

func (f *fakeTransport) Acks() <-chan uint64 { return f.acks }

func (f *fakeTransport) PublishLossRanges(ctx context.Context, losses []spool.LossRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.losses = append(f.losses, losses...)
	return nil
}

func openTestSpool(t *testing.T) *spool.Spool {
	t.Helper()
	sp, err := spool.Open(spool.Config{Dir: t.TempDir(), SegmentSizeBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { sp.Close(context.Background()) })
	return sp
}

func TestServeHTTPAcceptsSamplesAndAppendsDurably(t *testing.T) {
	sp := openTestSpool(t)
	tr := newFakeTransport()
	f, err := Open(Config{}, sp, tr)
	require.NoError(t, err)
	defer f.Close()

	body, err := json.Marshal([]wireSample{
		{SensorID: "sensor-a", TimestampMs: time.Now().UnixMilli(), Value: 1.5},
		{SensorID: "sensor-a", TimestampMs: time.Now().UnixMilli(), Value: 2.5},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/samples", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	back, err := sp.ReadFrom(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, back, 2)
}

func TestServeHTTPRejectsEmptyAndBadBodies(t *testing.T) {
	sp := openTestSpool(t)
	tr := newFakeTransport()
	f, err := Open(Config{}, sp, tr)
	require.NoError(t, err)
	defer f.Close()

	req := httptest.NewRequest(http.MethodPost, "/samples", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	reqEmpty := httptest.NewRequest(http.MethodPost, "/samples", bytes.NewReader([]byte("[]")))
	recEmpty := httptest.NewRecorder()
	f.ServeHTTP(recEmpty, reqEmpty)
	require.Equal(t, http.StatusBadRequest, recEmpty.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/samples", nil)
	rec2 := httptest.NewRecorder()
	f.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusMethodNotAllowed, rec2.Code)
}

func TestAckLoopAdvancesSpoolAckedSeq(t *testing.T) {
	sp := openTestSpool(t)
	tr := newFakeTransport()
	f, err := Open(Config{}, sp, tr)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	_, err = sp.Append(ctx, []spool.Sample{{SensorID: "sensor-a", Timestamp: time.Now(), Value: 1}})
	require.NoError(t, err)

	tr.acks <- 1

	require.Eventually(t, func() bool {
		st, err := sp.Status(ctx)
		return err == nil && st.AckedSeq == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLiveQueueDropsUnderBackpressureWithoutAffectingDurability(t *testing.T) {
	sp := openTestSpool(t)
	tr := newFakeTransport()
	f, err := Open(Config{LiveQueueSize: 1}, sp, tr)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	samples := make([]spool.Sample, 50)
	for i := range samples {
		samples[i] = spool.Sample{SensorID: "sensor-a", Timestamp: time.Now(), Value: float64(i)}
	}
	res, err := sp.Append(ctx, samples)
	require.NoError(t, err)
	require.Equal(t, 50, res.AcceptedCount)

	for _, s := range samples {
		f.offerLive(s)
	}

	back, err := sp.ReadFrom(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, back, 50)
}
