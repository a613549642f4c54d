// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package spool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/farmtelemetry/core/internal/errkind"
	"github.com/google/uuid"
)

func openSegmentName(streamID uuid.UUID, startSeq uint64) string {
	return fmt.Sprintf("seg-%s-%d.open", streamID, startSeq)
}

func closedSegmentName(streamID uuid.UUID, startSeq, endSeq uint64) string {
	return fmt.Sprintf("seg-%s-%d-%d.seg", streamID, startSeq, endSeq)
}

// segmentFileInfo describes a segment discovered on disk, open or closed.
type segmentFileInfo struct {
	Path      string
	StreamID  uuid.UUID
	StartSeq  uint64
	EndSeq    uint64 // 0 if open (unsealed)
	Sealed    bool
	SizeBytes int64
	ModTime   time.Time
}

// listSegments scans dir for segment files belonging to streamID, sorted by
// StartSeq ascending. At most one entry will have Sealed == false.
func listSegments(dir string, streamID uuid.UUID) ([]segmentFileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := fmt.Sprintf("seg-%s-", streamID)
	var out []segmentFileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}

		rest := strings.TrimPrefix(name, prefix)
		switch {
		case strings.HasSuffix(rest, ".open"):
			startStr := strings.TrimSuffix(rest, ".open")
			start, err := strconv.ParseUint(startStr, 10, 64)
			if err != nil {
				continue
			}
			out = append(out, segmentFileInfo{
				Path: filepath.Join(dir, name), StreamID: streamID,
				StartSeq: start, Sealed: false,
				SizeBytes: info.Size(), ModTime: info.ModTime(),
			})
		case strings.HasSuffix(rest, ".seg"):
			body := strings.TrimSuffix(rest, ".seg")
			parts := strings.SplitN(body, "-", 2)
			if len(parts) != 2 {
				continue
			}
			start, err1 := strconv.ParseUint(parts[0], 10, 64)
			end, err2 := strconv.ParseUint(parts[1], 10, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			out = append(out, segmentFileInfo{
				Path: filepath.Join(dir, name), StreamID: streamID,
				StartSeq: start, EndSeq: end, Sealed: true,
				SizeBytes: info.Size(), ModTime: info.ModTime(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartSeq < out[j].StartSeq })
	return out, nil
}

// segmentWriter wraps an open segment file for appending frames, tracking
// enough state to seal it and to recompute next_seq on recovery.
type segmentWriter struct {
	path     string
	f        *os.File
	header   segmentHeader
	size     int64 // bytes written so far, including header
	nextSeq  uint64
	lastSync time.Time
}

// createSegment creates a brand-new open segment file at startSeq and writes
// its header.
func createSegment(dir string, streamID uuid.UUID, startSeq uint64, now time.Time) (*segmentWriter, error) {
	path := filepath.Join(dir, openSegmentName(streamID, startSeq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	h := segmentHeader{
		Version:       segmentVersion,
		StreamID:      streamID,
		CreatedWallMs: now.UnixMilli(),
		StartSeq:      startSeq,
	}
	if _, err := f.Write(encodeSegmentHeader(h)); err != nil {
		f.Close()
		return nil, err
	}

	return &segmentWriter{path: path, f: f, header: h, size: segmentHeaderLen, nextSeq: startSeq}, nil
}

// recoverSegment opens an existing open segment, scans its frames validating
// CRC and length, and truncates any trailing partial/corrupt frame. Returns
// the writer positioned for further appends with nextSeq computed from the
// last valid record.
func recoverSegment(path string) (*segmentWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	hbuf := make([]byte, segmentHeaderLen)
	if _, err := io.ReadFull(f, hbuf); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading segment header: %v", errkind.ErrCorrupt, err)
	}
	h, err := decodeSegmentHeader(hbuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	sw := &segmentWriter{path: path, f: f, header: h, size: segmentHeaderLen, nextSeq: h.StartSeq}

	offset := int64(segmentHeaderLen)
	fhBuf := make([]byte, frameHeaderLen)
	for {
		n, err := f.ReadAt(fhBuf, offset)
		if err == io.EOF && n < frameHeaderLen {
			break // clean end, no partial frame header
		}
		if err != nil && err != io.EOF {
			f.Close()
			return nil, err
		}
		fh, err := decodeFrameHeader(fhBuf)
		if err != nil {
			break
		}
		if fh.Len > MaxRecordSize {
			// Frame header claims an implausible length; treat the rest of the
			// file as a partial/corrupt tail and truncate here.
			break
		}

		payload := make([]byte, fh.Len)
		pn, perr := f.ReadAt(payload, offset+frameHeaderLen)
		if pn < len(payload) || (perr != nil && perr != io.EOF) {
			// Partial frame at the tail (crash mid-write). Truncate.
			break
		}
		if err := verifyFrame(fh, payload); err != nil {
			break
		}

		rec, err := decodeRecord(payload)
		if err != nil {
			break
		}
		if rec.Seq+1 > sw.nextSeq {
			sw.nextSeq = rec.Seq + 1
		}

		offset += frameHeaderLen + int64(fh.Len)
		sw.size = offset
	}

	if err := f.Truncate(sw.size); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(sw.size, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return sw, nil
}

// append writes one frame per record, in order, returning the number of
// bytes written.
func (sw *segmentWriter) append(recs []record) (int64, error) {
	var total int64
	for _, r := range recs {
		frame := encodeFrame(encodeRecord(r))
		if _, err := sw.f.Write(frame); err != nil {
			return total, err
		}
		total += int64(len(frame))
		sw.size += int64(len(frame))
		sw.nextSeq = r.Seq + 1
	}
	return total, nil
}

func (sw *segmentWriter) sync() error {
	sw.lastSync = time.Now()
	return sw.f.Sync()
}

func (sw *segmentWriter) close() error {
	return sw.f.Close()
}

// seal fsyncs and renames the open segment file to its closed form. The
// writer must not be used again after this call.
func (sw *segmentWriter) seal(dir string, endSeq uint64) (string, error) {
	if err := sw.f.Sync(); err != nil {
		return "", err
	}
	if err := sw.f.Close(); err != nil {
		return "", err
	}
	newPath := filepath.Join(dir, closedSegmentName(sw.header.StreamID, sw.header.StartSeq, endSeq))
	if err := os.Rename(sw.path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}
