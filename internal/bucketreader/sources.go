// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bucketreader

import (
	"context"
	"time"
)

// TableReader reads raw samples out of the live time-series table.
type TableReader interface {
	ReadRange(ctx context.Context, sensorIDs []string, start, end time.Time) ([]RawSample, error)
}

// LakeReader reads raw samples out of the Parquet analysis lake and reports
// the replication watermark so the Reader knows which part of a requested
// range the lake can actually serve.
type LakeReader interface {
	ReadRange(ctx context.Context, sensorIDs []string, start, end time.Time) ([]RawSample, error)
	Watermark(ctx context.Context) (time.Time, bool, error)
}

// SensorKindLookup tells the Reader whether a sensor is COV (for AggAuto's
// avg-vs-last choice).
type SensorKindLookup interface {
	IsCOV(ctx context.Context, sensorID string) (bool, error)
}
