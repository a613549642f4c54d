// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// parquetRow is the on-disk column layout: sensor_id, ts, value, quality,
// inserted_at, per SPEC_FULL §3's "Lake partition" data model.
type parquetRow struct {
	SensorID   string `parquet:"sensor_id"`
	TsUnixMs   int64  `parquet:"ts"`
	Value      float64 `parquet:"value"`
	Quality    int16  `parquet:"quality"`
	InsertedAt int64  `parquet:"inserted_at"`
}

func toParquetRow(r Row) parquetRow {
	return parquetRow{
		SensorID:   r.SensorID,
		TsUnixMs:   r.Ts.UnixMilli(),
		Value:      r.Value,
		Quality:    r.Quality,
		InsertedAt: r.InsertedAt.UnixMilli(),
	}
}

func fromParquetRow(r parquetRow) Row {
	return Row{
		SensorID:   r.SensorID,
		Ts:         timeFromUnixMs(r.TsUnixMs),
		Value:      r.Value,
		Quality:    r.Quality,
		InsertedAt: timeFromUnixMs(r.InsertedAt),
	}
}

// writeParquetFile sorts rows by (sensor_id, ts) and writes a single
// ZSTD-compressed Parquet file at path. path should be a tmp name; the
// caller is responsible for the atomic rename into its final location.
func writeParquetFile(path string, rows []Row) error {
	sorted := make([]parquetRow, len(rows))
	for i, r := range rows {
		sorted[i] = toParquetRow(r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SensorID != sorted[j].SensorID {
			return sorted[i].SensorID < sorted[j].SensorID
		}
		return sorted[i].TsUnixMs < sorted[j].TsUnixMs
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[parquetRow](f, parquet.Compression(&zstd.Codec{}))
	if _, err := w.Write(sorted); err != nil {
		w.Close()
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readParquetFile reads every row out of a Parquet file, used by
// compaction.
func readParquetFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := parquet.NewGenericReader[parquetRow](f)
	defer r.Close()

	out := make([]Row, 0, r.NumRows())
	buf := make([]parquetRow, 1024)
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			out = append(out, fromParquetRow(buf[i]))
		}
		if err != nil {
			break
		}
	}
	return out, nil
}
