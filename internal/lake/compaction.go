// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"fmt"
	"os"
	"path/filepath"
)

// compactPartition reads every Parquet file in dir, dedups by (sensor_id,
// ts) keeping the row with the greatest inserted_at, writes a single sorted
// output, renames it into place, then deletes the inputs. It is idempotent:
// running it twice with no new writes produces an equivalent single file
// (SPEC_FULL §4.5 invariant).
func compactPartition(dir, runID string) (outputFile string, inputCount int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}

	var inputs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".parquet" {
			inputs = append(inputs, filepath.Join(dir, e.Name()))
		}
	}
	if len(inputs) <= 1 {
		return "", len(inputs), nil
	}

	type key struct {
		sensorID string
		tsUnixMs int64
	}
	best := make(map[key]Row)

	for _, path := range inputs {
		rows, err := readParquetFile(path)
		if err != nil {
			return "", 0, fmt.Errorf("compact: read %s: %w", path, err)
		}
		for _, r := range rows {
			k := key{r.SensorID, r.Ts.UnixMilli()}
			cur, ok := best[k]
			if !ok || r.InsertedAt.After(cur.InsertedAt) {
				best[k] = r
			}
		}
	}

	merged := make([]Row, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}

	outName := fmt.Sprintf("compact-%s.parquet", runID)
	tmpPath := filepath.Join(dir, outName+".tmp")
	if err := writeParquetFile(tmpPath, merged); err != nil {
		return "", 0, err
	}
	finalPath := filepath.Join(dir, outName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, err
	}

	for _, path := range inputs {
		if err := os.Remove(path); err != nil {
			return "", 0, fmt.Errorf("compact: remove input %s: %w", path, err)
		}
	}

	return finalPath, len(inputs), nil
}
