// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/farmtelemetry/core/internal/errkind"
	"github.com/google/uuid"
)

const (
	segmentMagic     = "FDSPOOL1"
	segmentVersion   = uint32(1)
	segmentHeaderLen = 64

	frameHeaderLen = 8 // len u32 + crc u32
	recordLen      = 40

	// MaxRecordSize bounds a single frame payload so a corrupt length field
	// can't cause an unbounded allocation during recovery.
	MaxRecordSize = 1 << 20
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// segmentHeader is the fixed 64-byte prefix of every segment file.
type segmentHeader struct {
	Version        uint32
	StreamID       uuid.UUID
	CreatedWallMs  int64
	StartSeq       uint64
}

func encodeSegmentHeader(h segmentHeader) []byte {
	buf := make([]byte, segmentHeaderLen)
	copy(buf[0:8], segmentMagic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], segmentHeaderLen)
	copy(buf[16:32], h.StreamID[:])
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.CreatedWallMs))
	binary.LittleEndian.PutUint64(buf[40:48], h.StartSeq)
	// [48:64) reserved, left zero.
	return buf
}

func decodeSegmentHeader(buf []byte) (segmentHeader, error) {
	var h segmentHeader
	if len(buf) < segmentHeaderLen {
		return h, fmt.Errorf("%w: short segment header (%d bytes)", errkind.ErrCorrupt, len(buf))
	}
	if string(buf[0:8]) != segmentMagic {
		return h, fmt.Errorf("%w: bad segment magic", errkind.ErrCorrupt)
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	headerLen := binary.LittleEndian.Uint32(buf[12:16])
	if headerLen != segmentHeaderLen {
		return h, fmt.Errorf("%w: unexpected header_len %d", errkind.ErrCorrupt, headerLen)
	}
	copy(h.StreamID[:], buf[16:32])
	h.CreatedWallMs = int64(binary.LittleEndian.Uint64(buf[32:40]))
	h.StartSeq = binary.LittleEndian.Uint64(buf[40:48])
	return h, nil
}

// record is the decoded form of a single sample as stored in a frame
// payload.
type record struct {
	SensorIndex uint32
	Seq         uint64
	TSMs        int64
	Value       float64
	Quality     int16
	TimeQuality uint16
	MonotonicMs uint64
}

func encodeRecord(r record) []byte {
	buf := make([]byte, recordLen)
	binary.LittleEndian.PutUint32(buf[0:4], r.SensorIndex)
	binary.LittleEndian.PutUint64(buf[4:12], r.Seq)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(r.TSMs))
	binary.LittleEndian.PutUint64(buf[20:28], floatBits(r.Value))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(r.Quality))
	binary.LittleEndian.PutUint16(buf[30:32], r.TimeQuality)
	binary.LittleEndian.PutUint64(buf[32:40], r.MonotonicMs)
	return buf
}

func decodeRecord(buf []byte) (record, error) {
	var r record
	if len(buf) != recordLen {
		return r, fmt.Errorf("%w: record payload is %d bytes, want %d", errkind.ErrCorrupt, len(buf), recordLen)
	}
	r.SensorIndex = binary.LittleEndian.Uint32(buf[0:4])
	r.Seq = binary.LittleEndian.Uint64(buf[4:12])
	r.TSMs = int64(binary.LittleEndian.Uint64(buf[12:20]))
	r.Value = floatFromBits(binary.LittleEndian.Uint64(buf[20:28]))
	r.Quality = int16(binary.LittleEndian.Uint16(buf[28:30]))
	r.TimeQuality = binary.LittleEndian.Uint16(buf[30:32])
	r.MonotonicMs = binary.LittleEndian.Uint64(buf[32:40])
	return r, nil
}

// encodeFrame wraps an already-encoded payload with its length-prefixed
// CRC32C frame header.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], crc32.Checksum(payload, crc32cTable))
	copy(buf[frameHeaderLen:], payload)
	return buf
}

type frameHeader struct {
	Len uint32
	CRC uint32
}

func decodeFrameHeader(buf []byte) (frameHeader, error) {
	var fh frameHeader
	if len(buf) < frameHeaderLen {
		return fh, fmt.Errorf("%w: short frame header", errkind.ErrCorrupt)
	}
	fh.Len = binary.LittleEndian.Uint32(buf[0:4])
	fh.CRC = binary.LittleEndian.Uint32(buf[4:8])
	return fh, nil
}

func verifyFrame(fh frameHeader, payload []byte) error {
	if crc32.Checksum(payload, crc32cTable) != fh.CRC {
		return fmt.Errorf("%w: frame crc mismatch", errkind.ErrCorrupt)
	}
	return nil
}
