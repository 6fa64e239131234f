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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements
// the scene video workflow: an ordered list of scenes in, one narrated,
// subtitled MP4 out.
package workflow

import (
	"context"
	"errors"

	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// SceneVideoWorkflow is a Chain of Responsibility that renders one request.
// It reads the request from CtxIn as JSON or as a *model.RenderRequest,
// which makes it usable both behind a Pub/Sub listener and in process.
//
// The terminal job status is written after the chain, whatever its outcome.
type SceneVideoWorkflow struct {
	cor.BaseCommand
	deps   *Dependencies
	chain  cor.Chain
	status cor.Command
}

// NewSceneVideoWorkflow builds the workflow from its dependencies.
func NewSceneVideoWorkflow(deps *Dependencies) (*SceneVideoWorkflow, error) {
	defaults, err := requestDefaults(deps.Config)
	if err != nil {
		return nil, err
	}
	w := &SceneVideoWorkflow{
		BaseCommand: *cor.NewBaseCommand("scene-video-workflow"),
		deps:        deps,
		status:      commands.NewJobStatusWriter("write-job-status", deps.Jobs),
	}
	w.chain = newRenderChain("scene-video-render", deps, defaults)
	return w, nil
}

// newRenderChain assembles the render steps shared by every workflow.
func newRenderChain(name string, deps *Dependencies, defaults commands.RequestDefaults) cor.Chain {
	render := deps.Config.Render
	out := cor.NewBaseChain(name)

	// Step 1: Decode and validate the request, resolve its style and job id.
	out.AddCommand(commands.NewRenderRequestReader("read-render-request", defaults, deps.Config.Styles))

	// Step 2: Create the per-job directories; fail early on an unwritable output dir.
	out.AddCommand(commands.NewWorkDirPreparer("prepare-work-dir", render.WorkDir, render.OutputDir))

	// Step 3: Background image and narration audio for every scene, in parallel.
	out.AddCommand(commands.NewAssetSynthesizer("synthesize-scene-assets", deps.Visuals, deps.Speech, render.AssetWorkers))

	// Step 4: One encoded clip per scene, its length driven by the measured narration.
	out.AddCommand(commands.NewSceneComposer("compose-scene-clips", deps.Composer, deps.Prober, render.EncodeWorkers, render.PaddingSeconds))

	// Step 5: Concatenate the clips in scene order.
	out.AddCommand(commands.NewSequenceMerger("merge-scene-clips", newMerger(deps)))

	// Step 6: Optionally publish the video to Cloud Storage.
	if deps.StorageClient != nil && deps.Config.Storage.VideoBucket != "" {
		out.AddCommand(commands.NewGCSFileUpload("upload-video", deps.StorageClient, deps.Config.Storage.VideoBucket, deps.Config.Storage.VideoPrefix))
	}
	return out
}

func newMerger(deps *Dependencies) *commands.Merger {
	return &commands.Merger{
		Concat:    deps.Concat,
		Prober:    deps.Prober,
		Tolerance: deps.Config.Render.DurationTolerance,
		URLPrefix: deps.Config.Render.PublicURLPrefix,
	}
}

func requestDefaults(config *cloud.Config) (commands.RequestDefaults, error) {
	policy, err := model.ParseFailurePolicy(config.Render.FailurePolicy)
	if err != nil {
		return commands.RequestDefaults{}, err
	}
	return commands.RequestDefaults{
		Language:      config.Speech.Language,
		Voice:         config.Speech.Voice,
		Style:         config.Render.DefaultStyle,
		FailurePolicy: policy,
	}, nil
}

func (w *SceneVideoWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	w.status.Execute(context)
	if context.HasErrors() {
		w.GetErrorCounter().Add(context.GetContext(), 1)
	} else {
		w.GetSuccessCounter().Add(context.GetContext(), 1)
	}
}

// Render runs the workflow for req and returns the final video. Errors keep
// their type through the chain: use errors.As to find a *model.SceneError
// naming the failed scene and stage, or a *model.MergeError holding the
// composed clips for RetryMerge.
func (w *SceneVideoWorkflow) Render(ctx context.Context, req *model.RenderRequest) (*model.FinalVideo, error) {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, req)
	if req.JobID != "" {
		chCtx.Add(commands.ParamJobID, req.JobID)
	}
	w.Execute(chCtx)
	return finalVideo(chCtx)
}

// RetryMerge repeats only the merge of a failed job, reusing the clips the
// MergeError lists. req must carry the job id of the failed run.
func (w *SceneVideoWorkflow) RetryMerge(ctx context.Context, req *model.RenderRequest, failed *model.MergeError) (*model.FinalVideo, error) {
	if req.JobID == "" {
		return nil, errors.New("retrying a merge needs the job id of the failed run")
	}
	if failed == nil || len(failed.Succeeded) == 0 {
		return nil, errors.New("no composed clips to merge")
	}
	defaults, err := requestDefaults(w.deps.Config)
	if err != nil {
		return nil, err
	}
	render := w.deps.Config.Render

	chain := cor.NewBaseChain("scene-video-retry-merge")
	chain.AddCommand(commands.NewRenderRequestReader("read-render-request", defaults, w.deps.Config.Styles))
	chain.AddCommand(commands.NewWorkDirPreparer("prepare-work-dir", render.WorkDir, render.OutputDir))
	chain.AddCommand(commands.NewSequenceMerger("merge-scene-clips", newMerger(w.deps)))
	if w.deps.StorageClient != nil && w.deps.Config.Storage.VideoBucket != "" {
		chain.AddCommand(commands.NewGCSFileUpload("upload-video", w.deps.StorageClient, w.deps.Config.Storage.VideoBucket, w.deps.Config.Storage.VideoPrefix))
	}

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, req)
	chCtx.Add(commands.ParamJobID, req.JobID)
	chCtx.Add(commands.ParamClips, failed.Succeeded)
	chain.Execute(chCtx)
	w.status.Execute(chCtx)
	return finalVideo(chCtx)
}

func finalVideo(chCtx cor.Context) (*model.FinalVideo, error) {
	if err := cor.Err(chCtx); err != nil {
		return nil, err
	}
	video, ok := chCtx.Get(commands.ParamFinalVideo).(*model.FinalVideo)
	if !ok {
		return nil, errors.New("render finished without a video")
	}
	return video, nil
}
