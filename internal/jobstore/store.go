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

// Package jobstore provides storage backends for jobs, deployed
// processes, and registered remote providers.
//
// # Interface Hierarchy
//
// Following interface segregation, a minimal backend need only implement
// JobStore; richer query/administrative capabilities are split into
// JobLister, ProcessStore, and ProviderStore so components can depend on
// only what they use and type-assert for optional capabilities.
package jobstore

import (
	"context"
	"io"
	"time"

	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/process"
	"github.com/crim-ca/weaver/pkg/status"
)

// Job is the persisted record of a single process execution.
type Job struct {
	ID         string `json:"id"`
	ProcessID  string `json:"process_id"`
	ProviderID string `json:"provider_id,omitempty"` // set when dispatched to a remote provider

	Status   status.Status `json:"status"`
	Progress int           `json:"progress"`
	Message  string        `json:"message,omitempty"`

	Inputs  *iovalue.Set `json:"inputs,omitempty"`
	Outputs *iovalue.Set `json:"outputs,omitempty"`

	Async        bool         `json:"async"`
	ResponseRaw  bool         `json:"response_raw"`
	Subscribers  *Subscribers `json:"subscribers,omitempty"`
	WorkDir      string       `json:"work_dir,omitempty"`
	ErrorType    string       `json:"error_type,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Subscribers holds at-most-one notification target per (kind, status
// category), mirroring an OGC API Execute request's `subscribers` object.
// Email addresses are stored encrypted at rest and are only decrypted at
// the moment of send; callback URIs are stored in clear text.
type Subscribers struct {
	RunningEmail []byte `json:"running_email,omitempty"`
	FailedEmail  []byte `json:"failed_email,omitempty"`
	SuccessEmail []byte `json:"success_email,omitempty"`

	InProgressURI string `json:"in_progress_uri,omitempty"`
	FailedURI     string `json:"failed_uri,omitempty"`
	SuccessURI    string `json:"success_uri,omitempty"`
}

// HasEmail reports whether any email subscriber target is configured.
func (s *Subscribers) HasEmail() bool {
	return s != nil && (len(s.RunningEmail) > 0 || len(s.FailedEmail) > 0 || len(s.SuccessEmail) > 0)
}

// HasCallback reports whether any callback subscriber target is configured.
func (s *Subscribers) HasCallback() bool {
	return s != nil && (s.InProgressURI != "" || s.FailedURI != "" || s.SuccessURI != "")
}

// Snapshot is an immutable, deep-copied view of a Job returned to
// callers outside the store so concurrent mutation of the live record
// never races with a reader.
type Snapshot struct {
	Job
}

// JobStore is the core interface every job persistence backend must
// implement.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Snapshot, error)
	UpdateJob(ctx context.Context, id string, mutate func(*Job) error) error
}

// JobFilter narrows a job listing query.
type JobFilter struct {
	ProcessID string
	Status    status.Status
	Limit     int
	Offset    int
}

// JobLister is an optional interface for listing and deleting jobs.
type JobLister interface {
	ListJobs(ctx context.Context, filter JobFilter) ([]*Snapshot, error)
	DeleteJob(ctx context.Context, id string) error
}

// ProcessStore persists deployed Application Package process
// descriptions.
type ProcessStore interface {
	DeployProcess(ctx context.Context, p *process.Process) error
	GetProcess(ctx context.Context, id string) (*process.Process, error)
	ListProcesses(ctx context.Context) ([]*process.Process, error)
	UndeployProcess(ctx context.Context, id string) error
}

// Provider is a registered remote OAP/WPS/ESGF-CWT service.
type Provider struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Type   string `json:"type"`
	Public bool   `json:"public"`
}

// ProviderStore persists registered remote providers.
type ProviderStore interface {
	RegisterProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, id string) (*Provider, error)
	ListProviders(ctx context.Context) ([]*Provider, error)
	UnregisterProvider(ctx context.Context, id string) error
}

// Store composes all segregated interfaces for full-featured backends.
type Store interface {
	JobStore
	JobLister
	ProcessStore
	ProviderStore
	io.Closer
}

// ErrNotFound is returned when a lookup by ID finds nothing.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return e.Kind + " not found: " + e.ID
}

// ErrAlreadyExists is returned when a create call collides with an
// existing record.
type ErrAlreadyExists struct {
	Kind string
	ID   string
}

func (e *ErrAlreadyExists) Error() string {
	return e.Kind + " already exists: " + e.ID
}

func (j *Job) snapshot() *Snapshot {
	cp := *j
	cp.Inputs = j.Inputs.Clone()
	cp.Outputs = j.Outputs.Clone()
	if j.Subscribers != nil {
		sub := *j.Subscribers
		sub.RunningEmail = append([]byte(nil), j.Subscribers.RunningEmail...)
		sub.FailedEmail = append([]byte(nil), j.Subscribers.FailedEmail...)
		sub.SuccessEmail = append([]byte(nil), j.Subscribers.SuccessEmail...)
		cp.Subscribers = &sub
	}
	return &Snapshot{Job: cp}
}

// SnapshotOf returns an immutable deep copy of job, suitable for handing
// to callers outside the owning store.
func SnapshotOf(job *Job) *Snapshot {
	return job.snapshot()
}
