// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const sensorIndexFileName = "sensor-index.json"

// sensorIndexFile is the on-disk JSON representation of the interning table.
type sensorIndexFile struct {
	NextIndex uint32            `json:"next_index"`
	BySensor  map[string]uint32 `json:"by_sensor"`
}

// sensorIndex interns sensor_id strings to stable u32 indices, persisted
// atomically on first use of a new sensor. Indices are never reused, even
// across process restarts.
type sensorIndex struct {
	dir       string
	nextIndex uint32
	bySensor  map[string]uint32
	byIndex   map[uint32]string
}

func loadSensorIndex(dir string) (*sensorIndex, error) {
	path := filepath.Join(dir, sensorIndexFileName)
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &sensorIndex{
			dir:      dir,
			bySensor: make(map[string]uint32),
			byIndex:  make(map[uint32]string),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var f sensorIndexFile
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parsing sensor index: %w", err)
	}

	idx := &sensorIndex{
		dir:       dir,
		nextIndex: f.NextIndex,
		bySensor:  f.BySensor,
		byIndex:   make(map[uint32]string, len(f.BySensor)),
	}
	if idx.bySensor == nil {
		idx.bySensor = make(map[string]uint32)
	}
	for sensorID, i := range idx.bySensor {
		idx.byIndex[i] = sensorID
		if i+1 > idx.nextIndex {
			idx.nextIndex = i + 1
		}
	}
	return idx, nil
}

// indexFor returns the stable index for sensorID, allocating and persisting
// a new one if this is the first time it's been seen.
func (idx *sensorIndex) indexFor(sensorID string) (uint32, error) {
	if i, ok := idx.bySensor[sensorID]; ok {
		return i, nil
	}

	i := idx.nextIndex
	idx.bySensor[sensorID] = i
	idx.byIndex[i] = sensorID
	idx.nextIndex = i + 1

	if err := idx.persist(); err != nil {
		// Roll back the in-memory allocation so a failed persist doesn't
		// leave us handing out an index that was never durably committed.
		delete(idx.bySensor, sensorID)
		delete(idx.byIndex, i)
		idx.nextIndex = i
		return 0, err
	}
	return i, nil
}

func (idx *sensorIndex) sensorFor(index uint32) (string, bool) {
	s, ok := idx.byIndex[index]
	return s, ok
}

func (idx *sensorIndex) persist() error {
	f := sensorIndexFile{NextIndex: idx.nextIndex, BySensor: idx.bySensor}
	buf, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return writeFileAtomic(idx.dir, sensorIndexFileName, buf)
}

// writeFileAtomic writes buf to a temp file in dir and renames it over name,
// the same tmp-then-rename pattern every piece of persisted state in this
// package uses.
func writeFileAtomic(dir, name string, buf []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

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
