// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSourceReader struct {
	rows []Row
}

func (f *fakeSourceReader) StreamRows(ctx context.Context, window timeRange, fn func(Row) error) error {
	for _, r := range f.rows {
		if r.InsertedAt.Before(window.Start) || !r.InsertedAt.Before(window.End) {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSourceReader) FillMissingInsertedAt(ctx context.Context, window timeRange) (int, error) {
	return 0, nil
}

func TestTickExportsRowsAndAdvancesWatermark(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	src := &fakeSourceReader{rows: []Row{
		{SensorID: "s1", Ts: now.Add(-time.Hour), Value: 1, InsertedAt: now.Add(-time.Hour)},
		{SensorID: "s2", Ts: now.Add(-time.Hour), Value: 2, InsertedAt: now.Add(-time.Hour)},
	}}

	rep, err := Open(Config{LakeRoot: dir, ReplicationLag: time.Minute, LateWindow: MinLateWindow}, src)
	require.NoError(t, err)

	require.NoError(t, rep.Tick(context.Background(), now))

	m, err := loadManifest(dir)
	require.NoError(t, err)
	dm := m.Datasets["metrics"]
	require.NotNil(t, dm.Watermark)
	require.True(t, len(dm.Partitions) > 0)

	st, err := loadState(dir)
	require.NoError(t, err)
	require.Equal(t, "ok", st.LastRunStatus)
	require.Equal(t, 2, st.LastRunRowCount)
}

func TestTickIsNoOpWhenNothingNewToExport(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	src := &fakeSourceReader{}
	rep, err := Open(Config{LakeRoot: dir, ReplicationLag: time.Minute}, src)
	require.NoError(t, err)

	require.NoError(t, rep.Tick(context.Background(), now))
	st, err := loadState(dir)
	require.NoError(t, err)
	require.Equal(t, "ok", st.LastRunStatus)

	require.NoError(t, rep.Tick(context.Background(), now))
	st2, err := loadState(dir)
	require.NoError(t, err)
	require.Equal(t, st.LastInsertedAt, st2.LastInsertedAt)
}

func TestCompactionIsIdempotentOnNoNewWrites(t *testing.T) {
	dir := t.TempDir()
	rows := []Row{
		{SensorID: "s1", Ts: time.Unix(100, 0), Value: 1, InsertedAt: time.Unix(200, 0)},
		{SensorID: "s1", Ts: time.Unix(100, 0), Value: 2, InsertedAt: time.Unix(300, 0)}, // newer, should win
	}
	require.NoError(t, writeParquetFile(dir+"/part-a.parquet", rows[:1]))
	require.NoError(t, writeParquetFile(dir+"/part-b.parquet", rows[1:]))

	out1, n1, err := compactPartition(dir, "run1")
	require.NoError(t, err)
	require.Equal(t, 2, n1)

	merged, err := readParquetFile(out1)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, 2.0, merged[0].Value)

	out2, n2, err := compactPartition(dir, "run2")
	require.NoError(t, err)
	require.Equal(t, 1, n2) // only the prior compacted file remains; nothing to merge
	require.Equal(t, "", out2)
}

func TestShardForIsStable(t *testing.T) {
	a := shardFor("sensor-a", 16)
	b := shardFor("sensor-a", 16)
	require.Equal(t, a, b)
	require.Less(t, a, uint64(16))
}
