// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bucketreader

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/farmtelemetry/core/internal/errkind"
)

// Reader is C6.
type Reader struct {
	cfg    Config
	table  TableReader
	lake   LakeReader
	kinds  SensorKindLookup
	metrics *readerMetrics
}

func Open(cfg Config, table TableReader, lake LakeReader, kinds SensorKindLookup) (*Reader, error) {
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return &Reader{cfg: cfg, table: table, lake: lake, kinds: kinds, metrics: newReaderMetrics(cfg.Reg)}, nil
}

// Read executes a bucketed query, choosing per-source ranges based on the
// lake's watermark: the part of the range the watermark already covers is
// read from Parquet, the part after it from the time-series table.
func (r *Reader) Read(ctx context.Context, q Query) ([]BucketRow, error) {
	if q.IntervalSeconds <= 0 {
		return nil, errkind.ErrInvalidParams
	}
	bucketCount := int(q.End.Sub(q.Start).Seconds()) / int(q.IntervalSeconds)
	if bucketCount < 0 {
		bucketCount = 0
	}
	if bucketCount*len(q.SensorIDs) > r.cfg.MaxExpectedBuckets {
		return nil, errors.New("bucketreader: expected bucket count exceeds cap; widen the interval")
	}

	samples, err := r.collectSamples(ctx, q)
	if err != nil {
		return nil, err
	}

	if q.Quality.GoodOnly {
		samples = filterGoodQuality(samples, q.Quality.MaxQuality)
	}

	rows, err := r.aggregate(ctx, q, samples)
	if err != nil {
		return nil, err
	}
	r.metrics.rowsReturned.Add(float64(len(rows)))
	return rows, nil
}

// collectSamples splits [start, end) at the lake watermark: the portion
// covered by the lake is read from Parquet, the rest (including all of it,
// if the lake has no watermark yet) from the live table.
func (r *Reader) collectSamples(ctx context.Context, q Query) ([]RawSample, error) {
	tableStart, tableEnd := q.Start, q.End
	var lakeSamples []RawSample

	if r.lake != nil {
		wm, ok, err := r.lake.Watermark(ctx)
		if err != nil {
			return nil, err
		}
		if ok && wm.After(q.Start) {
			lakeEnd := wm
			if lakeEnd.After(q.End) {
				lakeEnd = q.End
			}
			var err error
			lakeSamples, err = r.lake.ReadRange(ctx, q.SensorIDs, q.Start, lakeEnd)
			if err != nil {
				return nil, err
			}
			r.metrics.lakeReads.Inc()
			if lakeEnd.After(tableStart) {
				tableStart = lakeEnd
			}
		}
	}

	var tableSamples []RawSample
	if tableStart.Before(tableEnd) {
		var err error
		tableSamples, err = r.table.ReadRange(ctx, q.SensorIDs, tableStart, tableEnd)
		if err != nil {
			return nil, err
		}
		r.metrics.tableReads.Inc()
	}

	return append(lakeSamples, tableSamples...), nil
}

func filterGoodQuality(samples []RawSample, maxQuality int16) []RawSample {
	out := samples[:0]
	for _, s := range samples {
		if s.Quality <= maxQuality {
			out = append(out, s)
		}
	}
	return out
}

// bucketStart aligns ts to floor(ts/interval) * interval, per SPEC_FULL
// §4.6.
func bucketStart(ts time.Time, intervalSeconds int64) time.Time {
	unix := ts.Unix()
	aligned := (unix / intervalSeconds) * intervalSeconds
	return time.Unix(aligned, 0).UTC()
}

func (r *Reader) aggregate(ctx context.Context, q Query, samples []RawSample) ([]BucketRow, error) {
	type bucketKey struct {
		sensorID string
		bucket   int64
	}
	groups := make(map[bucketKey][]RawSample)

	for _, s := range samples {
		b := bucketStart(s.Ts, q.IntervalSeconds)
		k := bucketKey{s.SensorID, b.Unix()}
		groups[k] = append(groups[k], s)
	}

	rows := make([]BucketRow, 0, len(groups))
	for k, g := range groups {
		if len(g) < q.MinSamples {
			continue
		}
		mode := q.Mode
		if mode == AggAuto || mode == "" {
			isCOV := false
			if r.kinds != nil {
				var err error
				isCOV, err = r.kinds.IsCOV(ctx, k.sensorID)
				if err != nil {
					return nil, err
				}
			}
			if isCOV {
				mode = AggLast
			} else {
				mode = AggAvg
			}
		}
		rows = append(rows, BucketRow{
			SensorID: k.sensorID,
			Bucket:   time.Unix(k.bucket, 0).UTC(),
			Value:    reduce(g, mode),
			Samples:  len(g),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SensorID != rows[j].SensorID {
			return rows[i].SensorID < rows[j].SensorID
		}
		return rows[i].Bucket.Before(rows[j].Bucket)
	})
	return rows, nil
}

func reduce(samples []RawSample, mode AggMode) float64 {
	switch mode {
	case AggSum:
		var sum float64
		for _, s := range samples {
			sum += s.Value
		}
		return sum
	case AggMin:
		m := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value < m {
				m = s.Value
			}
		}
		return m
	case AggMax:
		m := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value > m {
				m = s.Value
			}
		}
		return m
	case AggLast:
		last := samples[0]
		for _, s := range samples[1:] {
			if s.Ts.After(last.Ts) {
				last = s
			}
		}
		return last.Value
	default: // AggAvg
		var sum float64
		for _, s := range samples {
			sum += s.Value
		}
		return sum / float64(len(samples))
	}
}
