// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
)

// Executor runs one job's type-specific body. It must poll sink for
// cancellation at phase boundaries and between batches, and report progress
// periodically; returning a *Failure with Canceled set is how an executor
// reports cooperative cancellation (never returns a plain error for that
// case, so the runner can set status=canceled rather than failed).
type Executor func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error)

// Registry maps job_type to its Executor.
type Registry map[string]Executor

func (r Registry) JobTypes() []string {
	types := make([]string, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	return types
}
