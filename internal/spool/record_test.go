// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

// TestRecordRoundTripIsIdentity is the §8 round-trip law: encode then decode
// a record must yield the original value, fuzzed across the field space.
func TestRecordRoundTripIsIdentity(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 500; i++ {
		var r record
		f.Fuzz(&r)

		payload := encodeRecord(r)
		got, err := decodeRecord(payload)
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
}

func TestFrameVerifyDetectsCorruption(t *testing.T) {
	r := record{SensorIndex: 1, Seq: 1, TSMs: 1000, Value: 3.14, Quality: 1, TimeQuality: 1, MonotonicMs: 1}
	frame := encodeFrame(encodeRecord(r))

	// Flip a payload byte; the frame header's CRC must no longer verify.
	corrupted := append([]byte(nil), frame...)
	corrupted[frameHeaderLen] ^= 0xFF

	fh, err := decodeFrameHeader(corrupted[:frameHeaderLen])
	require.NoError(t, err)
	err = verifyFrame(fh, corrupted[frameHeaderLen:])
	require.Error(t, err)
}

func TestSegmentHeaderRoundTrip(t *testing.T) {
	h := segmentHeader{Version: segmentVersion, CreatedWallMs: 123456789, StartSeq: 42}
	buf := encodeSegmentHeader(h)
	require.Len(t, buf, segmentHeaderLen)

	got, err := decodeSegmentHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeSegmentHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, segmentHeaderLen)
	copy(buf, "NOTASPOOL")
	_, err := decodeSegmentHeader(buf)
	require.Error(t, err)
}
