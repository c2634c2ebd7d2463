// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler implements the Execute submission contract: resolving
// the effective execution mode from the Prefer header, the request body,
// and the process's declared job control options, creating the Job record,
// enqueueing it onto the worker queue, and optionally blocking for a
// bounded sync wait.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/internal/log"
	"github.com/crim-ca/weaver/internal/notify"
	"github.com/crim-ca/weaver/internal/queue"
	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
	"github.com/crim-ca/weaver/pkg/status"
)

// Executor runs a single accepted job to completion, driving it through
// STARTED, RUNNING, and a terminal status. It is responsible for its own
// status/progress updates against the job store; the Scheduler only needs
// to know when it returns.
type Executor interface {
	Execute(ctx context.Context, jobID string)
}

// Prefer carries the parsed contents of an incoming request's Prefer
// header, as defined by RFC 7240 and profiled by OGC API - Processes.
type Prefer struct {
	RespondAsync bool
	Wait         time.Duration // zero means unset
}

// SubmitRequest is a validated OAP Execute request.
type SubmitRequest struct {
	Process *process.Process
	Inputs  *iovalue.Set

	OutputTransmission map[string]string

	// Mode is the body's `mode` field: "sync", "async", or "" if omitted.
	Mode string
	// Response is the body's `response` field: "raw" or "document".
	Response string

	Prefer      Prefer
	Subscribers notify.SubmitSubscribers
}

// SubmitResult reports the outcome of a submission.
type SubmitResult struct {
	Job *jobstore.Snapshot

	// SyncCompleted reports whether the job reached a terminal status
	// within the sync wait window. False means the caller should treat
	// this as an async accept regardless of what was requested.
	SyncCompleted bool

	// PreferenceApplied is non-empty when the requested preference could
	// not be honored and was downgraded, echoed back per RFC 7240 as a
	// `Preference-Applied` response header.
	PreferenceApplied string
}

// Scheduler resolves execution mode, creates jobs, and dispatches them
// onto the worker queue.
type Scheduler struct {
	store    jobstore.JobStore
	queue    *queue.Queue
	executor Executor
	notifier *notify.Notifier
	logger   *slog.Logger

	maxSyncWait time.Duration

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// New creates a Scheduler. maxSyncWait bounds every synchronous request's
// wait regardless of what the Prefer header asks for.
func New(store jobstore.JobStore, q *queue.Queue, executor Executor, notifier *notify.Notifier, maxSyncWait time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSyncWait <= 0 {
		maxSyncWait = 20 * time.Second
	}
	return &Scheduler{
		store:       store,
		queue:       q,
		executor:    executor,
		notifier:    notifier,
		logger:      logger,
		maxSyncWait: maxSyncWait,
		waiters:     make(map[string]chan struct{}),
	}
}

// Submit implements the submission contract: resolve mode, create the Job
// in ACCEPTED status, enqueue its execution, and optionally wait.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Process.Visibility != "public" {
		return nil, &ogcerrors.NotFoundError{Resource: "process", ID: req.Process.ID}
	}

	resolved := resolveMode(req.Prefer, req.Mode, req.Process)

	subs, err := s.notifier.MapSubscribers(req.Subscribers)
	if err != nil {
		return nil, &ogcerrors.ValidationError{Field: "subscribers", Message: err.Error()}
	}

	now := timeNow()
	job := &jobstore.Job{
		ID:          uuid.NewString(),
		ProcessID:   req.Process.ID,
		Status:      status.Accepted,
		Progress:    0,
		Inputs:      req.Inputs,
		Async:       resolved.async,
		ResponseRaw: req.Response == "raw",
		Subscribers: subs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	logger := log.WithJobContext(s.logger, job.ID, job.ProcessID)
	logger.Info("job accepted", "async", resolved.async, "preference_applied", resolved.preferenceApplied)

	done := s.registerWaiter(job.ID)
	if err := s.queue.Submit(ctx, queue.Task{
		JobID: job.ID,
		Run: func(runCtx context.Context) {
			defer s.clearWaiter(job.ID, done)
			s.executor.Execute(runCtx, job.ID)
		},
	}); err != nil {
		s.clearWaiter(job.ID, done)
		return nil, fmt.Errorf("scheduler: enqueue job %s: %w", job.ID, err)
	}

	result := &SubmitResult{PreferenceApplied: resolved.preferenceApplied}

	if !resolved.async {
		wait := resolved.wait
		if wait <= 0 || wait > s.maxSyncWait {
			wait = s.maxSyncWait
		}
		select {
		case <-done:
			result.SyncCompleted = true
		case <-time.After(wait):
			result.SyncCompleted = false
		case <-ctx.Done():
			result.SyncCompleted = false
		}
	}

	snap, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	result.Job = snap
	return result, nil
}

// Cancel requests termination of a running or pending job. It is not an
// error to cancel a job that has already finished; the terminate signal is
// simply a no-op in that case.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	snap, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if status.IsDone(snap.Status) {
		return nil
	}

	s.queue.Cancel(jobID)
	log.WithJobContext(s.logger, jobID, snap.ProcessID).Info("job cancellation requested")

	return s.store.UpdateJob(ctx, jobID, func(j *jobstore.Job) error {
		if status.IsDone(j.Status) {
			return nil
		}
		j.Status = status.Dismissed
		j.Message = "job dismissed by cancellation request"
		return nil
	})
}

// PendingWaiters returns the number of submissions currently blocked in a
// sync wait.
func (s *Scheduler) PendingWaiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func (s *Scheduler) registerWaiter(jobID string) <-chan struct{} {
	done := make(chan struct{})
	s.mu.Lock()
	s.waiters[jobID] = done
	s.mu.Unlock()
	return done
}

func (s *Scheduler) clearWaiter(jobID string, done chan struct{}) {
	s.mu.Lock()
	delete(s.waiters, jobID)
	s.mu.Unlock()
	select {
	case <-done:
	default:
		close(done)
	}
}

var timeNow = time.Now
