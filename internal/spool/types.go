// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"time"

	"github.com/google/uuid"
)

// TimeQuality describes how trustworthy a sample's wall-clock timestamp is.
type TimeQuality uint16

const (
	TimeQualityUnknown TimeQuality = iota
	TimeQualityGood
	TimeQualityUnsynced
)

// Sample is a single reading handed to the spool for durable append. Seq is
// assigned by the spool itself during Append and is ignored on input.
type Sample struct {
	SensorID    string
	Timestamp   time.Time
	Value       float64
	Quality     int16
	Seq         uint64
	StreamID    uuid.UUID
	TimeQuality TimeQuality
	MonotonicMs uint64
}

// LossRange records a contiguous run of seq values that were evicted from the
// spool before being acknowledged. It is retained until acked_seq advances
// past End.
type LossRange struct {
	Start     uint64    `json:"start_seq"`
	End       uint64    `json:"end_seq"`
	DroppedAt time.Time `json:"dropped_at"`
}

// Overlaps reports whether two loss ranges share any seq.
func (l LossRange) Overlaps(o LossRange) bool {
	return l.Start <= o.End && o.Start <= l.End
}

// Status is a point-in-time snapshot of spool capacity and backlog, returned
// by Spool.Status for operator visibility.
type Status struct {
	StreamID       uuid.UUID
	NextSeq        uint64
	AckedSeq       uint64
	BacklogSamples uint64
	SpoolBytes     uint64
	CapBytes       uint64
	FreeBytes      uint64
	LossesPending  int
	OpenSegments   int
	ClosedSegments int
}

// AppendResult is returned to the caller of Append once samples have been
// durably written to the open segment.
type AppendResult struct {
	AcceptedCount int
	FirstSeq      uint64
	LastSeq       uint64
}
