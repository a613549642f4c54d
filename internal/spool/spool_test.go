// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Dir:              dir,
		SegmentSizeBytes: 1 << 20,
		SyncInterval:     0,
		totalFSBytesFn: func(string) (uint64, uint64, error) {
			return 100 << 30, 50 << 30, nil
		},
	}
}

func makeSamples(n int, sensorID string) []Sample {
	out := make([]Sample, n)
	now := time.Now()
	for i := range out {
		out[i] = Sample{
			SensorID:  sensorID,
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Value:     float64(i),
			Quality:   0,
		}
	}
	return out
}

func TestAppendReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	sp, err := Open(testConfig(t))
	require.NoError(t, err)
	defer sp.Close(ctx)

	res, err := sp.Append(ctx, makeSamples(10, "sensor-a"))
	require.NoError(t, err)
	require.Equal(t, 10, res.AcceptedCount)
	require.Equal(t, uint64(1), res.FirstSeq)
	require.Equal(t, uint64(10), res.LastSeq)

	back, err := sp.ReadFrom(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, back, 10)
	for i, s := range back {
		require.Equal(t, uint64(i+1), s.Seq)
		require.Equal(t, "sensor-a", s.SensorID)
		require.Equal(t, float64(i), s.Value)
	}
}

// TestDurableRestart mirrors §8 concrete scenario #1: append 100 samples to
// an empty spool, restart, ack(50); closed segments with end<=50 must be
// gone and the next append must continue from seq 101.
func TestDurableRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.SegmentSizeBytes = 400 // force several small segments

	sp, err := Open(cfg)
	require.NoError(t, err)
	// The open segment rolls after an Append that takes it past
	// SegmentSizeBytes, so ten appends of ten samples seal ten segments.
	for i := 0; i < 10; i++ {
		_, err = sp.Append(ctx, makeSamples(10, "sensor-a"))
		require.NoError(t, err)
	}
	require.NoError(t, sp.Close(ctx))

	sp2, err := Open(cfg)
	require.NoError(t, err)
	defer sp2.Close(ctx)

	require.NoError(t, sp2.Ack(ctx, 50))

	st, err := sp2.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(101), st.NextSeq)
	require.Equal(t, uint64(50), st.BacklogSamples)
	require.Equal(t, 5, st.ClosedSegments) // 51..60 through 91..100 remain

	res, err := sp2.Append(ctx, makeSamples(1, "sensor-a"))
	require.NoError(t, err)
	require.Equal(t, uint64(101), res.FirstSeq)
}

// TestCapEvictionRecordsLoss mirrors §8 concrete scenario #2, with the cap
// scaled to this package's segment sizes (a sealed 10-sample segment is
// 64+10*48 = 544 bytes).
func TestCapEvictionRecordsLoss(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.SegmentSizeBytes = 10*recordLen + frameHeaderLen*10 // ~10 samples/segment
	cfg.MaxSpoolBytes = 1000

	sp, err := Open(cfg)
	require.NoError(t, err)
	defer sp.Close(ctx)

	// Two full (sealed) segments of 10 samples each, plus a third started.
	// Each Append of 10 fills the open segment and rolls it; after the
	// second roll spool_bytes exceeds the cap and the unacked 1..10 is evicted.
	for _, n := range []int{10, 10, 1} {
		_, err = sp.Append(ctx, makeSamples(n, "sensor-a"))
		require.NoError(t, err)
	}

	st, err := sp.Status(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, st.LossesPending, 1)
	require.Less(t, st.SpoolBytes, uint64(3000))
}

func TestAckIsIdempotentAndMonotonic(t *testing.T) {
	ctx := context.Background()
	sp, err := Open(testConfig(t))
	require.NoError(t, err)
	defer sp.Close(ctx)

	_, err = sp.Append(ctx, makeSamples(10, "sensor-a"))
	require.NoError(t, err)

	require.NoError(t, sp.Ack(ctx, 5))
	st1, err := sp.Status(ctx)
	require.NoError(t, err)

	require.NoError(t, sp.Ack(ctx, 5))
	st2, err := sp.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, st1, st2)

	require.NoError(t, sp.Ack(ctx, 2)) // regressive ack is a no-op
	st3, err := sp.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), st3.AckedSeq)
}

// TestRecoverTruncatesPartialTailFrame mirrors the original's
// recover_truncate_tail_truncates_partial_frame test: a crash mid-write
// leaves a partial frame at the end of the open segment, which recovery must
// truncate so subsequent appends succeed and existing data reads back
// intact.
func TestRecoverTruncatesPartialTailFrame(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	sp, err := Open(cfg)
	require.NoError(t, err)
	_, err = sp.Append(ctx, makeSamples(5, "sensor-a"))
	require.NoError(t, err)
	require.NoError(t, sp.Close(ctx))

	segs, err := listSegments(cfg.Dir, mustOnlyStream(t, cfg.Dir))
	require.NoError(t, err)
	require.Len(t, segs, 1)

	f, err := os.OpenFile(segs[0].Path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3}) // partial frame header
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sp2, err := Open(cfg)
	require.NoError(t, err)
	defer sp2.Close(ctx)

	back, err := sp2.ReadFrom(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, back, 5)

	res, err := sp2.Append(ctx, makeSamples(1, "sensor-a"))
	require.NoError(t, err)
	require.Equal(t, uint64(6), res.FirstSeq)
}

func mustOnlyStream(t *testing.T, dir string) uuid.UUID {
	t.Helper()
	st, found, err := loadState(dir)
	require.NoError(t, err)
	require.True(t, found)
	return st.StreamID
}
