// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package bench benchmarks internal/spool append and read throughput,
// the way the teacher's own bench harness compared log-store backends,
// recording a latency histogram instead of relying on go test's summary
// alone.
package bench

import (
	"context"
	"os"
	"testing"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	hdrwriter "github.com/benmathews/hdrhistogram-writer"
	"github.com/google/uuid"

	"github.com/farmtelemetry/core/internal/spool"
)

func openBenchSpool(b *testing.B) *spool.Spool {
	b.Helper()
	dir := b.TempDir()
	s, err := spool.Open(spool.Config{
		Dir:              dir,
		SegmentSizeBytes: 16 << 20,
		SegmentMaxAge:    time.Hour,
		SyncInterval:     50 * time.Millisecond,
	})
	if err != nil {
		b.Fatalf("open spool: %v", err)
	}
	b.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func BenchmarkSpoolAppend(b *testing.B) {
	s := openBenchSpool(b)
	ctx := context.Background()
	streamID := uuid.New()
	hist := hdrhistogram.New(1, 10_000_000, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sample := []spool.Sample{{
			SensorID:  "bench-sensor",
			Timestamp: time.Now(),
			Value:     float64(i),
			Quality:   0,
			StreamID:  streamID,
		}}
		start := time.Now()
		if _, err := s.Append(ctx, sample); err != nil {
			b.Fatalf("append: %v", err)
		}
		hist.RecordValue(time.Since(start).Microseconds())
	}
	b.StopTimer()

	if path := os.Getenv("SPOOL_BENCH_HISTOGRAM"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			b.Fatalf("create histogram file: %v", err)
		}
		defer f.Close()
		hdrwriter.WriteDistributionFromHistogram(hist, f, 1.0)
	}
}

func BenchmarkSpoolReadFrom(b *testing.B) {
	s := openBenchSpool(b)
	ctx := context.Background()
	streamID := uuid.New()

	const seed = 10_000
	for i := 0; i < seed; i++ {
		if _, err := s.Append(ctx, []spool.Sample{{
			SensorID:  "bench-sensor",
			Timestamp: time.Now(),
			Value:     float64(i),
			StreamID:  streamID,
		}}); err != nil {
			b.Fatalf("seed append: %v", err)
		}
	}

	hist := hdrhistogram.New(1, 10_000_000, 3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := time.Now()
		if _, err := s.ReadFrom(ctx, 1, 256); err != nil {
			b.Fatalf("read: %v", err)
		}
		hist.RecordValue(time.Since(start).Microseconds())
	}
	b.StopTimer()

	if path := os.Getenv("SPOOL_BENCH_HISTOGRAM"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			b.Fatalf("create histogram file: %v", err)
		}
		defer f.Close()
		hdrwriter.WriteDistributionFromHistogram(hist, f, 1.0)
	}
}
