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

// Package memory provides an in-memory jobstore.Store implementation,
// suitable for single-process deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/pkg/process"
)

var (
	_ jobstore.JobStore      = (*Store)(nil)
	_ jobstore.JobLister     = (*Store)(nil)
	_ jobstore.ProcessStore  = (*Store)(nil)
	_ jobstore.ProviderStore = (*Store)(nil)
	_ jobstore.Store         = (*Store)(nil)
)

// Store is an in-memory implementation of jobstore.Store.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*jobstore.Job
	processes map[string]*process.Process
	providers map[string]*jobstore.Provider
}

// New creates an empty in-memory job store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*jobstore.Job),
		processes: make(map[string]*process.Process),
		providers: make(map[string]*jobstore.Provider),
	}
}

func (s *Store) CreateJob(ctx context.Context, job *jobstore.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return &jobstore.ErrAlreadyExists{Kind: "job", ID: job.ID}
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, &jobstore.ErrNotFound{Kind: "job", ID: id}
	}
	return jobstore.SnapshotOf(job), nil
}

// UpdateJob applies mutate to the stored job under lock, rejecting any
// attempt to decrease Progress (jobs only move forward).
func (s *Store) UpdateJob(ctx context.Context, id string, mutate func(*jobstore.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return &jobstore.ErrNotFound{Kind: "job", ID: id}
	}
	priorProgress := job.Progress
	if err := mutate(job); err != nil {
		return err
	}
	if job.Progress < priorProgress {
		job.Progress = priorProgress
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListJobs(ctx context.Context, filter jobstore.JobFilter) ([]*jobstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*jobstore.Job
	for _, job := range s.jobs {
		if filter.ProcessID != "" && job.ProcessID != filter.ProcessID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.Offset > 0 && filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else if filter.Offset >= len(matched) {
		matched = nil
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]*jobstore.Snapshot, len(matched))
	for i, job := range matched {
		result[i] = jobstore.SnapshotOf(job)
	}
	return result, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *Store) DeployProcess(ctx context.Context, p *process.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Deployed = time.Now()
	p.Updated = p.Deployed
	s.processes[p.ID] = p
	return nil
}

func (s *Store) GetProcess(ctx context.Context, id string) (*process.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[id]
	if !ok {
		return nil, &jobstore.ErrNotFound{Kind: "process", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProcesses(ctx context.Context) ([]*process.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*process.Process, 0, len(s.processes))
	for _, p := range s.processes {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UndeployProcess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processes, id)
	return nil
}

func (s *Store) RegisterProvider(ctx context.Context, p *jobstore.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
	return nil
}

func (s *Store) GetProvider(ctx context.Context, id string) (*jobstore.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, &jobstore.ErrNotFound{Kind: "provider", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProviders(ctx context.Context) ([]*jobstore.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*jobstore.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UnregisterProvider(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.providers, id)
	return nil
}

// Close is a no-op; the in-memory store holds no external resources.
func (s *Store) Close() error { return nil }
