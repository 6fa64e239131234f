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

package workflow_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRendersInBackground(t *testing.T) {
	rig := newTestDeps(t, 1.0)
	w := newWorkflow(t, rig)
	d := workflow.NewDispatcher(ctx, rig.jobs, 2)

	for i := 0; i < 3; i++ {
		req := exampleRequest(fmt.Sprintf("job-bg-%d", i), "")
		require.NoError(t, d.Submit(req.JobID, func(jobCtx context.Context) {
			_, _ = w.Render(jobCtx, req)
		}))
	}
	d.Close()

	for i := 0; i < 3; i++ {
		status, err := rig.jobs.Get(ctx, fmt.Sprintf("job-bg-%d", i))
		require.NoError(t, err)
		assert.Equal(t, model.JobSucceeded, status.State)
	}
}

func TestDispatcherRecordsProgress(t *testing.T) {
	jobs := services.NewMemoryJobStore()
	d := workflow.NewDispatcher(ctx, jobs, 1)

	started, release := make(chan struct{}), make(chan struct{})
	var seen model.JobState
	require.NoError(t, d.Submit("job-progress", func(jobCtx context.Context) {
		status, err := jobs.Get(jobCtx, "job-progress")
		if err == nil {
			seen = status.State
		}
		close(started)
		<-release
	}))
	<-started

	// The second job waits for the only worker.
	require.NoError(t, d.Submit("job-waiting", func(context.Context) {}))
	status, err := jobs.Get(ctx, "job-waiting")
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, status.State)

	close(release)
	d.Close()
	assert.Equal(t, model.JobRunning, seen)
}

func TestDispatcherLimitsParallelism(t *testing.T) {
	jobs := services.NewMemoryJobStore()
	d := workflow.NewDispatcher(ctx, jobs, 2)

	var running, peak atomic.Int32
	for i := 0; i < 6; i++ {
		require.NoError(t, d.Submit(fmt.Sprintf("job-%d", i), func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
		}))
	}
	d.Close()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestDispatcherRejectsActiveJobID(t *testing.T) {
	jobs := services.NewMemoryJobStore()
	d := workflow.NewDispatcher(ctx, jobs, 2)

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, d.Submit("job-dup", func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	var ran atomic.Bool
	assert.ErrorIs(t, d.Submit("job-dup", func(context.Context) { ran.Store(true) }), workflow.ErrJobActive)
	close(release)

	// Once the first run returned the id can be used again.
	require.Eventually(t, func() bool {
		return d.Submit("job-dup", func(context.Context) { ran.Store(true) }) == nil
	}, time.Second, 10*time.Millisecond)
	d.Close()
	assert.True(t, ran.Load())
}

func TestDispatcherClosed(t *testing.T) {
	d := workflow.NewDispatcher(ctx, services.NewMemoryJobStore(), 1)
	d.Close()
	assert.ErrorIs(t, d.Submit("late", func(context.Context) {}), workflow.ErrDispatcherClosed)
}

func TestDispatcherCancelledBeforeStart(t *testing.T) {
	jobs := services.NewMemoryJobStore()
	dctx, cancel := context.WithCancel(ctx)
	d := workflow.NewDispatcher(dctx, jobs, 1)

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, d.Submit("job-blocking", func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	ran := false
	require.NoError(t, d.Submit("job-never", func(context.Context) { ran = true }))

	cancel()
	require.Eventually(t, func() bool {
		status, err := jobs.Get(ctx, "job-never")
		return err == nil && status.State == model.JobFailed
	}, time.Second, 10*time.Millisecond)
	close(release)
	d.Close()
	assert.False(t, ran)
}
