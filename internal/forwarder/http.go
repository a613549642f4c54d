// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package forwarder

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log/level"

	"github.com/farmtelemetry/core/internal/spool"
)

// wireSample is the JSON shape accepted on POST /samples. TimestampMs is
// Unix milliseconds; the handler converts to time.Time before handing the
// batch to the spool.
type wireSample struct {
	SensorID    string `json:"sensor_id"`
	TimestampMs int64  `json:"ts_ms"`
	Value       float64 `json:"value"`
	Quality     int16  `json:"quality"`
	TimeQuality uint16 `json:"time_quality"`
	MonotonicMs uint64 `json:"monotonic_ms"`
}

// ServeHTTP implements http.Handler so a Forwarder can be mounted directly
// at POST /samples. Any other method is rejected.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, f.cfg.MaxBodyBytes)
	defer r.Body.Close()

	var wire []wireSample
	if err := json.NewDecoder(body).Decode(&wire); err != nil {
		if err == io.EOF {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(wire) == 0 {
		http.Error(w, "empty sample array", http.StatusBadRequest)
		return
	}

	samples := make([]spool.Sample, len(wire))
	for i, ws := range wire {
		if ws.SensorID == "" {
			http.Error(w, "sample missing sensor_id", http.StatusBadRequest)
			return
		}
		samples[i] = spool.Sample{
			SensorID:    ws.SensorID,
			Timestamp:   time.UnixMilli(ws.TimestampMs),
			Value:       ws.Value,
			Quality:     ws.Quality,
			TimeQuality: spool.TimeQuality(ws.TimeQuality),
			MonotonicMs: ws.MonotonicMs,
		}
	}

	res, err := f.sp.Append(r.Context(), samples)
	if err != nil {
		level.Error(f.logger).Log("msg", "spool append failed", "err", err)
		http.Error(w, "append failed", http.StatusInternalServerError)
		return
	}

	for _, s := range samples {
		f.offerLive(s)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(struct {
		AcceptedCount int    `json:"accepted_count"`
		FirstSeq      uint64 `json:"first_seq"`
		LastSeq       uint64 `json:"last_seq"`
	}{res.AcceptedCount, res.FirstSeq, res.LastSeq})
}
