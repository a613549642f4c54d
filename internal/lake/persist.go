// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	manifestFileName = "manifest.json"
	stateFileName    = "replication-state.json"
)

// writeFileAtomic is the same write-tmp-then-rename idiom used by C1
// (internal/spool/index.go), repeated here rather than exported across
// package boundaries since each component owns its own directory.
func writeFileAtomic(dir, name string, buf []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

func loadManifest(dir string) (Manifest, error) {
	m := Manifest{Datasets: make(map[string]DatasetManifest)}
	buf, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(buf, &m); err != nil {
		return m, err
	}
	if m.Datasets == nil {
		m.Datasets = make(map[string]DatasetManifest)
	}
	return m, nil
}

func persistManifest(dir string, m Manifest) error {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(dir, manifestFileName, buf)
}

func loadState(dir string) (ReplicationState, error) {
	var s ReplicationState
	buf, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(buf, &s)
	return s, err
}

func persistState(dir string, s ReplicationState) error {
	buf, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(dir, stateFileName, buf)
}

// partitionDate formats a timestamp's UTC date the way partition directory
// names expect it: YYYY-MM-DD.
func partitionDate(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
