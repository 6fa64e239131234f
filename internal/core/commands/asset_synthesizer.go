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
// AssetSynthesizer, which produces the background image and the narration
// audio of every scene.
//
// Logic Flow:
//  1. The render request, its resolved style and the job work directory are
//     read from the context.
//  2. Scenes are processed by a bounded pool of workers. Each scene gets its
//     own span carrying `scene.index`.
//  3. For each scene the visual is acquired first. Acquisition falls back to
//     a placeholder on its own, so only a failure to write the image is
//     scene-fatal.
//  4. The narration is then synthesized through the speech fallback chain
//     into an index-qualified audio file. Exhausting every engine is
//     scene-fatal.
//  5. Scene-fatal failures are `*model.SceneError` values naming the scene
//     and stage. Under the skip policy they are recorded in the context and
//     the scene is dropped; under abort the first one fails the command and
//     cancels the remaining scenes.
//  6. The surviving assets, in scene order, become the command's output.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// VisualAcquirer produces a scene background. *visual.Acquirer implements it.
type VisualAcquirer interface {
	Acquire(ctx context.Context, index int, ref string, style *model.RenderStyle, basePath string) (string, model.VisualSource, error)
}

// SpeechSynthesizer narrates a scene. *speech.Fallback implements it.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language, voice, basePath string) (*speech.Result, error)
}

// AssetSynthesizer runs visual acquisition and speech synthesis per scene.
type AssetSynthesizer struct {
	cor.BaseCommand
	visuals VisualAcquirer
	speech  SpeechSynthesizer
	workers int
}

// NewAssetSynthesizer creates the command. workers bounds the scenes
// processed at once; zero or less means no bound.
func NewAssetSynthesizer(name string, visuals VisualAcquirer, speech SpeechSynthesizer, workers int) *AssetSynthesizer {
	out := &AssetSynthesizer{
		BaseCommand: *cor.NewBaseCommand(name),
		visuals:     visuals,
		speech:      speech,
		workers:     workers,
	}
	out.BaseCommand.InputParamName = ParamRenderRequest
	return out
}

func (a *AssetSynthesizer) Execute(context cor.Context) {
	req, style, wd, err := renderInputs(context)
	if err != nil {
		a.Fail(context, err)
		return
	}

	assets := make([]*model.SynthesizedAsset, len(req.Scenes))
	skipped, err := runScenes(context.GetContext(), len(req.Scenes), a.workers, req.FailurePolicy, a.worker(req, style, wd, assets))
	RecordSceneErrors(context, skipped...)
	for _, se := range skipped {
		slog.WarnContext(context.GetContext(), "skipping scene", "job", req.JobID, "scene", se.Index, "stage", se.Stage, "error", se.Err)
	}
	if err != nil {
		a.Fail(context, err)
		return
	}

	survivors := compact(assets)
	if len(survivors) == 0 {
		a.Fail(context, errors.New("no scene produced assets"))
		return
	}
	context.Add(ParamAssets, survivors)
	context.Add(a.GetOutputParam(), survivors)
	a.Succeed(context)
}

func (a *AssetSynthesizer) worker(req *model.RenderRequest, style *model.RenderStyle, wd *model.WorkDir, assets []*model.SynthesizedAsset) sceneFunc {
	return func(ctx context.Context, i int) error {
		asset, err := a.synthesize(ctx, req, style, wd, i+1)
		if err != nil {
			return err
		}
		assets[i] = asset
		return nil
	}
}

func (a *AssetSynthesizer) synthesize(ctx context.Context, req *model.RenderRequest, style *model.RenderStyle, wd *model.WorkDir, index int) (*model.SynthesizedAsset, error) {
	ctx, span := a.GetTracer().Start(ctx, "synthesize-scene", trace.WithAttributes(attribute.Int("scene.index", index)))
	defer span.End()
	scene := req.Scenes[index-1]

	visualPath, source, err := a.visuals.Acquire(ctx, index, scene.VisualRef, style, wd.ImageBase(index))
	if err != nil {
		span.SetStatus(codes.Error, "visual failed")
		return nil, model.NewSceneError(index, model.StageVisual, err)
	}
	span.SetAttributes(attribute.String("visual.source", string(source)))

	res, err := a.speech.Synthesize(ctx, scene.Text, req.Language, req.Voice, wd.AudioBase(index))
	if err != nil {
		span.SetStatus(codes.Error, "speech failed")
		return nil, model.NewSceneError(index, model.StageSpeech, err)
	}
	span.SetAttributes(attribute.String("speech.engine", res.Engine))

	return &model.SynthesizedAsset{
		Index:        index,
		Scene:        scene,
		VisualPath:   visualPath,
		VisualSource: source,
		AudioPath:    res.Path,
		SpeechEngine: res.Engine,
	}, nil
}

// renderInputs reads the request, style and work directory published by the
// earlier commands of the render workflow.
func renderInputs(context cor.Context) (*model.RenderRequest, *model.RenderStyle, *model.WorkDir, error) {
	req, ok := context.Get(ParamRenderRequest).(*model.RenderRequest)
	if !ok {
		return nil, nil, nil, fmt.Errorf("missing render request")
	}
	style, ok := context.Get(ParamRenderStyle).(*model.RenderStyle)
	if !ok {
		return nil, nil, nil, fmt.Errorf("missing render style")
	}
	wd, ok := context.Get(ParamWorkDir).(*model.WorkDir)
	if !ok {
		return nil, nil, nil, fmt.Errorf("missing work directory")
	}
	return req, style, wd, nil
}
