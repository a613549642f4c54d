// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package lake

import (
	"context"
	"time"
)

// timeRange is a half-open [Start, End) window over inserted_at.
type timeRange struct {
	Start, End time.Time
}

// SourceReader streams committed metric rows out of the time-series store
// for export. The pgx-backed implementation (PgSourceReader) reads pgx.Rows
// from a plain query and does not use `COPY`; tests use an in-memory fake.
type SourceReader interface {
	// StreamRows calls fn once per row with inserted_at in the given
	// window. fn returning an error stops iteration and is propagated.
	StreamRows(ctx context.Context, window timeRange, fn func(Row) error) error

	// FillMissingInsertedAt backfills a null inserted_at column for legacy
	// rows within the bounded window, returning the count updated.
	FillMissingInsertedAt(ctx context.Context, window timeRange) (int, error)
}
