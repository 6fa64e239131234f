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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// JobStatusWriter, which persists the terminal status of a render job.
//
// Logic Flow:
//  1. The command runs after the render chain, whether it succeeded or not,
//     so a polling client always sees a terminal state.
//  2. Without a job id (the request could not even be decoded) there is
//     nothing to write and the command returns.
//  3. If the context holds errors a failure status is built from the joined
//     errors; otherwise a success status is built from the final video.
//     Both carry the indexes of every failed scene.
//  4. The status is written with a context detached from cancellation, so a
//     cancelled job still records why it ended.
//  5. A store failure is logged and counted. It is not added to the chain
//     errors, because that would turn a rendered video into a failed job.
package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
)

type JobStatusWriter struct {
	cor.BaseCommand
	store services.JobStore
}

func NewJobStatusWriter(name string, store services.JobStore) *JobStatusWriter {
	return &JobStatusWriter{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

// IsExecutable only needs a context; the writer has no chain input.
func (w *JobStatusWriter) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

func (w *JobStatusWriter) Execute(chCtx cor.Context) {
	jobID, _ := chCtx.Get(ParamJobID).(string)
	if jobID == "" {
		slog.WarnContext(chCtx.GetContext(), "no job id, status not written", "error", cor.Err(chCtx))
		return
	}

	status := TerminalStatus(chCtx)
	ctx := context.WithoutCancel(chCtx.GetContext())
	if err := w.store.Put(ctx, status); err != nil {
		w.GetErrorCounter().Add(ctx, 1)
		slog.ErrorContext(ctx, "failed to write job status", "job", jobID, "error", err)
		return
	}
	slog.InfoContext(ctx, "job finished", "job", jobID, "state", status.State, "failed_scenes", status.FailedScenes)
	w.GetSuccessCounter().Add(ctx, 1)
}

// TerminalStatus builds the final status of the job held in the context.
func TerminalStatus(chCtx cor.Context) *model.JobStatus {
	jobID, _ := chCtx.Get(ParamJobID).(string)
	failed := FailedScenes(chCtx)
	if err := cor.Err(chCtx); err != nil {
		return model.FailureStatus(jobID, err, failed)
	}
	video, ok := chCtx.Get(ParamFinalVideo).(*model.FinalVideo)
	if !ok {
		return model.FailureStatus(jobID, errors.New("render finished without a video"), failed)
	}
	return model.SuccessStatus(jobID, video, failed)
}
