// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	queued    []Row
	completed map[string]json.RawMessage
	failed    map[string]*Error
	canceled  map[string]bool
	progress  map[string]Progress
	cancelReq map[string]bool
}

func newFakeStore(rows ...Row) *fakeStore {
	return &fakeStore{
		queued:    append([]Row{}, rows...),
		completed: make(map[string]json.RawMessage),
		failed:    make(map[string]*Error),
		canceled:  make(map[string]bool),
		progress:  make(map[string]Progress),
		cancelReq: make(map[string]bool),
	}
}

func (f *fakeStore) ClaimNext(ctx context.Context, jobTypes []string) (*Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := make(map[string]bool, len(jobTypes))
	for _, t := range jobTypes {
		allowed[t] = true
	}
	for i, row := range f.queued {
		if allowed[row.JobType] {
			f.queued = append(f.queued[:i], f.queued[i+1:]...)
			row.Status = StatusRunning
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateProgress(ctx context.Context, jobID string, progress Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[jobID] = progress
	return nil
}

func (f *fakeStore) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelReq[jobID], nil
}

func (f *fakeStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[jobID] = result
	return nil
}

func (f *fakeStore) Fail(ctx context.Context, jobID string, jobErr *Error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = jobErr
	return nil
}

func (f *fakeStore) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled[jobID] = true
	return nil
}

func TestRunnerCompletesSuccessfulJob(t *testing.T) {
	store := newFakeStore(Row{ID: "job-1", JobType: "noop", Params: json.RawMessage(`{}`)})
	reg := Registry{
		"noop": func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		},
	}
	r, err := Open(Config{PollInterval: 5 * time.Millisecond}, store, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.completed["job-1"]
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunnerFailsJobWithStructuredError(t *testing.T) {
	store := newFakeStore(Row{ID: "job-2", JobType: "always_fails", Params: json.RawMessage(`{}`)})
	reg := Registry{
		"always_fails": func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error) {
			return nil, FailWith("invalid_params", "nope")
		},
	}
	r, err := Open(Config{PollInterval: 5 * time.Millisecond}, store, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.failed["job-2"]
		return ok
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	require.Equal(t, "invalid_params", store.failed["job-2"].Code)
	store.mu.Unlock()

	cancel()
	<-done
}

func TestRunnerMarksCanceledNotFailed(t *testing.T) {
	store := newFakeStore(Row{ID: "job-3", JobType: "cancels", Params: json.RawMessage(`{}`)})
	reg := Registry{
		"cancels": func(ctx context.Context, job Row, sink ProgressSink) (json.RawMessage, error) {
			return nil, Canceled()
		},
	}
	r, err := Open(Config{PollInterval: 5 * time.Millisecond}, store, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.canceled["job-3"]
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	_, failed := store.failed["job-3"]
	store.mu.Unlock()
	require.False(t, failed)

	cancel()
	<-done
}
