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

package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/internal/jobstore/memory"
	"github.com/crim-ca/weaver/internal/notify"
	"github.com/crim-ca/weaver/internal/queue"
	"github.com/crim-ca/weaver/pkg/process"
	"github.com/crim-ca/weaver/pkg/status"
)

// fakeExecutor drives a job straight to a terminal status after an
// optional delay, the way the real execution engine would after its own
// phased sequence.
type fakeExecutor struct {
	store  jobstore.JobStore
	delay  time.Duration
	result status.Status
}

func (e *fakeExecutor) Execute(ctx context.Context, jobID string) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return
		}
	}
	_ = e.store.UpdateJob(ctx, jobID, func(j *jobstore.Job) error {
		j.Status = e.result
		j.Progress = 100
		return nil
	})
}

func TestSubmitSyncCompletesWithinWaitWindow(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, delay: 10 * time.Millisecond, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), time.Second, slog.Default())

	proc := &process.Process{ID: "buffer", Visibility: "public", JobControlOptions: []string{"sync-execute"}}
	res, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "sync"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.SyncCompleted {
		t.Errorf("SyncCompleted = false, want true")
	}
	if res.Job.Status != status.Succeeded {
		t.Errorf("Job.Status = %v, want succeeded", res.Job.Status)
	}
}

func TestSubmitSyncFallsBackToAsyncOnTimeout(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, delay: 200 * time.Millisecond, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), 10*time.Millisecond, slog.Default())

	proc := &process.Process{ID: "buffer", Visibility: "public", JobControlOptions: []string{"sync-execute"}}
	res, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "sync"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.SyncCompleted {
		t.Errorf("SyncCompleted = true, want false (should have timed out)")
	}
	if res.Job.Status != status.Accepted {
		t.Errorf("Job.Status = %v, want accepted", res.Job.Status)
	}
}

func TestSubmitAsyncReturnsImmediately(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, delay: time.Hour, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), time.Second, slog.Default())

	proc := &process.Process{ID: "buffer", Visibility: "public", JobControlOptions: []string{"sync-execute", "async-execute"}}
	res, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "async"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.SyncCompleted {
		t.Errorf("SyncCompleted = true, want false")
	}
	if res.Job.Status != status.Accepted {
		t.Errorf("Job.Status = %v, want accepted", res.Job.Status)
	}
}

func TestSubmitDowngradesUnsupportedSync(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), time.Second, slog.Default())

	proc := &process.Process{ID: "collection-process", Visibility: "public", JobControlOptions: []string{"async-execute"}}
	res, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "sync"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.PreferenceApplied != "respond-async" {
		t.Errorf("PreferenceApplied = %q, want respond-async", res.PreferenceApplied)
	}
}

func TestSubmitRejectsPrivateProcess(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), time.Second, slog.Default())

	proc := &process.Process{ID: "internal-only", Visibility: "private"}
	_, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "async"})
	if err == nil {
		t.Fatalf("Submit() error = nil, want NotFoundError for private process")
	}
}

func TestCancelMarksJobDismissedPreservingProgress(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, delay: time.Hour, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), time.Second, slog.Default())

	proc := &process.Process{ID: "buffer", Visibility: "public", JobControlOptions: []string{"async-execute"}}
	res, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "async"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_ = store.UpdateJob(context.Background(), res.Job.ID, func(j *jobstore.Job) error {
		j.Status = status.Running
		j.Progress = 42
		return nil
	})

	if err := s.Cancel(context.Background(), res.Job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	snap, err := store.GetJob(context.Background(), res.Job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if snap.Status != status.Dismissed {
		t.Errorf("Status = %v, want dismissed", snap.Status)
	}
	if snap.Progress != 42 {
		t.Errorf("Progress = %d, want 42 preserved from before cancellation", snap.Progress)
	}
}

func TestCancelIsNoopOnFinishedJob(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{store: store, result: status.Succeeded}
	s := New(store, queue.New(4), exec, notify.New(config.NotifyConfig{}, slog.Default()), time.Second, slog.Default())

	proc := &process.Process{ID: "buffer", Visibility: "public", JobControlOptions: []string{"sync-execute"}}
	res, err := s.Submit(context.Background(), SubmitRequest{Process: proc, Mode: "sync"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Job.Status != status.Succeeded {
		t.Fatalf("setup: Job.Status = %v, want succeeded", res.Job.Status)
	}

	if err := s.Cancel(context.Background(), res.Job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	snap, _ := store.GetJob(context.Background(), res.Job.ID)
	if snap.Status != status.Succeeded {
		t.Errorf("Status = %v, want unchanged succeeded", snap.Status)
	}
}
