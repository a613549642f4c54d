// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const stateFileName = "spool-state.json"

// persistedState is the JSON-serialized form of spool state (§6 "Spool state
// file").
type persistedState struct {
	StreamID            uuid.UUID   `json:"stream_id"`
	NextSeq             uint64      `json:"next_seq"`
	AckedSeq            uint64      `json:"acked_seq"`
	OpenSegmentStartSeq *uint64     `json:"open_segment_start_seq,omitempty"`
	Losses              []LossRange `json:"losses"`
}

func loadState(dir string) (persistedState, bool, error) {
	path := filepath.Join(dir, stateFileName)
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return persistedState{}, false, nil
	}
	if err != nil {
		return persistedState{}, false, err
	}

	var s persistedState
	if err := json.Unmarshal(buf, &s); err != nil {
		return persistedState{}, false, fmt.Errorf("parsing spool state: %w", err)
	}
	if s.StreamID == uuid.Nil {
		return persistedState{}, false, fmt.Errorf("spool state has unparseable stream_id")
	}
	return s, true, nil
}

func persistState(dir string, s persistedState) error {
	buf, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return writeFileAtomic(dir, stateFileName, buf)
}

// newStreamState creates a brand-new stream identity for a fresh spool
// directory.
func newStreamState() persistedState {
	return persistedState{
		StreamID: uuid.New(),
		NextSeq:  1,
		AckedSeq: 0,
	}
}

// addLoss appends a loss range to state, clamped so it never includes
// seq <= acked_seq. It does not merge with or check for overlap against
// ranges already recorded. The caller is
// responsible for only calling this once it knows the range is genuinely
// unacknowledged and lost.
func (s *persistedState) addLoss(start, end uint64, now time.Time) {
	if end <= s.AckedSeq {
		return
	}
	if start <= s.AckedSeq {
		start = s.AckedSeq + 1
	}
	s.Losses = append(s.Losses, LossRange{Start: start, End: end, DroppedAt: now})
}

// pruneLosses drops loss ranges that have been fully subsumed by an ACK.
func (s *persistedState) pruneLosses() {
	if len(s.Losses) == 0 {
		return
	}
	kept := s.Losses[:0]
	for _, l := range s.Losses {
		if l.End > s.AckedSeq {
			kept = append(kept, l)
		}
	}
	s.Losses = kept
}
