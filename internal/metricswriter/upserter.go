// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metricswriter

import "context"

// Upserter performs the idempotent (sensor_id, ts) upsert described in
// SPEC_FULL §4.4. Implementations should return an error wrapping
// errkind.ErrTransient for retryable conditions (connection drop, lock
// contention) and any other error for permanent ones (schema mismatch),
// since the Writer's retry policy keys off that distinction.
type Upserter interface {
	UpsertBatch(ctx context.Context, rows []Row) error
}
