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
// SceneComposer, which turns each scene's image and narration into one
// encoded clip.
//
// Logic Flow:
//  1. The synthesized assets, style and work directory are read from the
//     context.
//  2. For each asset, on a bounded pool of workers, the narration file is
//     probed. The measured length is the only duration used; nothing is
//     estimated from the text.
//  3. The clip length is the larger of the scene's target duration and the
//     narration plus padding.
//  4. The subtitle rows are split from the scene text and the clip is
//     encoded to its index-qualified path.
//  5. Probe and encode failures are `*model.SceneError` values and follow
//     the request's failure policy, exactly like the asset stage.
//  6. The composed clips, in scene order, become the command's output.
package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/media"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type SceneComposer struct {
	cor.BaseCommand
	composer media.Composer
	prober   media.Prober
	workers  int
	padding  float64
}

// NewSceneComposer creates the command. padding is the silence kept after the
// narration, in seconds; zero or less selects the default.
func NewSceneComposer(name string, composer media.Composer, prober media.Prober, workers int, padding float64) *SceneComposer {
	if padding <= 0 {
		padding = model.DefaultPaddingSeconds
	}
	out := &SceneComposer{
		BaseCommand: *cor.NewBaseCommand(name),
		composer:    composer,
		prober:      prober,
		workers:     workers,
		padding:     padding,
	}
	out.BaseCommand.InputParamName = ParamAssets
	return out
}

func (s *SceneComposer) Execute(context cor.Context) {
	req, style, wd, err := renderInputs(context)
	if err != nil {
		s.Fail(context, err)
		return
	}
	assets, ok := context.Get(s.GetInputParam()).([]*model.SynthesizedAsset)
	if !ok || len(assets) == 0 {
		s.Fail(context, errors.New("no assets to compose"))
		return
	}

	clips := make([]*model.SceneClip, len(assets))
	skipped, err := runScenes(context.GetContext(), len(assets), s.workers, req.FailurePolicy, s.worker(assets, style, wd, clips))
	RecordSceneErrors(context, skipped...)
	for _, se := range skipped {
		slog.WarnContext(context.GetContext(), "skipping scene", "job", req.JobID, "scene", se.Index, "stage", se.Stage, "error", se.Err)
	}
	if err != nil {
		s.Fail(context, err)
		return
	}

	survivors := compact(clips)
	if len(survivors) == 0 {
		s.Fail(context, errors.New("no scene was composed"))
		return
	}
	context.Add(ParamClips, survivors)
	context.Add(s.GetOutputParam(), survivors)
	s.Succeed(context)
}

func (s *SceneComposer) worker(assets []*model.SynthesizedAsset, style *model.RenderStyle, wd *model.WorkDir, clips []*model.SceneClip) sceneFunc {
	return func(ctx context.Context, i int) error {
		clip, err := s.compose(ctx, assets[i], style, wd)
		if err != nil {
			return err
		}
		clips[i] = clip
		return nil
	}
}

func (s *SceneComposer) compose(ctx context.Context, asset *model.SynthesizedAsset, style *model.RenderStyle, wd *model.WorkDir) (*model.SceneClip, error) {
	ctx, span := s.GetTracer().Start(ctx, "compose-scene", trace.WithAttributes(attribute.Int("scene.index", asset.Index)))
	defer span.End()

	audioSeconds, err := s.prober.Duration(ctx, asset.AudioPath)
	if err != nil {
		span.SetStatus(codes.Error, "probe failed")
		return nil, model.NewSceneError(asset.Index, model.StageProbe, err)
	}
	asset.AudioDurationSeconds = audioSeconds

	duration := model.EffectiveDuration(asset.Scene.TargetDurationSeconds, audioSeconds, s.padding)
	lines := media.SubtitleLines(asset.Scene.Text)
	span.SetAttributes(
		attribute.Float64("audio.seconds", audioSeconds),
		attribute.Float64("clip.seconds", duration),
		attribute.Int("subtitle.lines", len(lines)),
	)

	spec := &media.ComposeSpec{
		Index:           asset.Index,
		ImagePath:       asset.VisualPath,
		AudioPath:       asset.AudioPath,
		Lines:           lines,
		DurationSeconds: duration,
		Style:           style,
		OutputPath:      wd.ClipPath(asset.Index),
	}
	if err := s.composer.Compose(ctx, spec); err != nil {
		span.SetStatus(codes.Error, "compose failed")
		return nil, model.NewSceneError(asset.Index, model.StageCompose, err)
	}
	return &model.SceneClip{
		Index:                    asset.Index,
		Path:                     spec.OutputPath,
		EffectiveDurationSeconds: duration,
		SubtitleLines:            len(lines),
	}, nil
}
