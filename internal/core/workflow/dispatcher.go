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

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrDispatcherClosed is returned by Submit after Close.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
	// ErrJobActive is returned by Submit while a job with the same id is
	// queued or running. Both would write to the same work directory.
	ErrJobActive = errors.New("job is already queued or running")
)

// Job runs one accepted render. Its terminal status is written by the
// workflow itself.
type Job func(ctx context.Context)

// Dispatcher runs submitted jobs in the background with bounded parallelism.
// It records the queued and running states; the workflows record the end.
type Dispatcher struct {
	ctx    context.Context
	jobs   services.JobStore
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	active map[string]bool
}

// NewDispatcher runs at most workers jobs at a time. Jobs inherit ctx, so
// cancelling it stops every running render.
func NewDispatcher(ctx context.Context, jobs services.JobStore, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		ctx:    ctx,
		jobs:   jobs,
		sem:    semaphore.NewWeighted(int64(workers)),
		active: make(map[string]bool),
	}
}

// Submit records jobID as queued and returns at once. The job starts when a
// worker slot frees up. An id can be submitted again once its job returned.
func (d *Dispatcher) Submit(jobID string, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.active[jobID] {
		return ErrJobActive
	}
	if err := d.jobs.Put(d.ctx, model.QueuedStatus(jobID)); err != nil {
		return err
	}
	d.active[jobID] = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(jobID)
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.put(model.FailureStatus(jobID, err, nil))
			return
		}
		defer d.sem.Release(1)

		d.put(model.RunningStatus(jobID))
		job(d.ctx)
	}()
	return nil
}

func (d *Dispatcher) release(jobID string) {
	d.mu.Lock()
	delete(d.active, jobID)
	d.mu.Unlock()
}

func (d *Dispatcher) put(status *model.JobStatus) {
	ctx := context.WithoutCancel(d.ctx)
	if err := d.jobs.Put(ctx, status); err != nil {
		slog.ErrorContext(ctx, "failed to write job status", "job", status.JobID, "state", status.State, "error", err)
	}
}

// Close refuses new jobs and waits for the submitted ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
