// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package services contains the data access layer of the video service: the
// job status stores polled by clients, the content source used to derive
// scripts and the lookup of finished video files.
package services

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// ErrJobNotFound is returned by JobStore.Get for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists the status of render jobs keyed by job id. Put replaces
// the current status; Get returns the latest one.
type JobStore interface {
	Put(ctx context.Context, status *model.JobStatus) error
	Get(ctx context.Context, jobID string) (*model.JobStatus, error)
}

// MemoryJobStore keeps statuses in process memory. It is used by the CLI
// and tests, and by the server when no durable store is configured.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.JobStatus
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.JobStatus)}
}

func (s *MemoryJobStore) Put(_ context.Context, status *model.JobStatus) error {
	if status == nil || status.JobID == "" {
		return errors.New("job status requires a job id")
	}
	cp := *status
	cp.FailedScenes = slices.Clone(status.FailedScenes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[status.JobID] = &cp
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*model.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *st
	cp.FailedScenes = slices.Clone(st.FailedScenes)
	return &cp, nil
}
