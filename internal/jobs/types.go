// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package jobs implements C8, the analysis job runner: a persisted job
// table, cooperative-cancellation executors, and atomic result
// completion, shared by the alarm backtest job and the correlation jobs
// that supplement it.
package jobs

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Error is the structured failure a job executor reports; Code is a
// stable machine-readable reason ("invalid_params",
// "target_resolution_failed", "result_encode_failed", ...).
type Error struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Progress is the periodically-persisted progress a long-running job
// reports.
type Progress struct {
	Phase     string `json:"phase"`
	Completed int64  `json:"completed"`
	Total     *int64 `json:"total,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Row is one row of the persisted job table.
type Row struct {
	ID                string
	JobType           string
	Status            Status
	Params            json.RawMessage
	Progress          Progress
	Error             *Error
	Result            json.RawMessage
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CancelRequestedAt *time.Time
}

// Failure is the error an executor returns to report a terminal, non-panic
// job outcome. A nil Failure.Err with Canceled set models the
// canceled-not-failed distinction SPEC_FULL §5 requires.
type Failure struct {
	Canceled bool
	Err      *Error
}

func (f *Failure) Error() string {
	if f.Canceled {
		return "job canceled"
	}
	if f.Err != nil {
		return f.Err.Code + ": " + f.Err.Message
	}
	return "job failed"
}

func FailWith(code, message string) error {
	return &Failure{Err: &Error{Code: code, Message: message}}
}

func Canceled() error {
	return &Failure{Canceled: true}
}
