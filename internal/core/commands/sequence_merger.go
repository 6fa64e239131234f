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
// SequenceMerger, which concatenates the composed clips into the final video.
//
// Logic Flow:
//  1. The composed clips are read from the context and ordered by scene
//     index.
//  2. A concat manifest is written to the job directory and the clips are
//     joined into `<output dir>/<output name>`, re-encoded by default or
//     stream copied when the request asks for it.
//  3. The merged file is probed. Its length should equal the sum of the clip
//     lengths; drift beyond the tolerance is logged, not fatal.
//  4. Any failure after composition becomes a `*model.MergeError` carrying
//     every composed clip, so the merge can be retried on its own, and a
//     partially written output is removed.
//  5. The `*model.FinalVideo` becomes the command's output.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/media"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

const (
	// DefaultDurationTolerance is the accepted difference, in seconds, between
	// the merged video and the sum of its clips.
	DefaultDurationTolerance = 0.2
	// DefaultVideoURLPrefix is where the API serves finished videos.
	DefaultVideoURLPrefix = "/api/v1/videos/files/"
)

// Merger joins composed clips into a final video.
type Merger struct {
	Concat    media.Concatenator
	Prober    media.Prober
	Tolerance float64
	URLPrefix string
}

// Merge writes the final video for req. Every error is a *model.MergeError.
func (m *Merger) Merge(ctx context.Context, req *model.RenderRequest, wd *model.WorkDir, clips []*model.SceneClip) (*model.FinalVideo, error) {
	ordered := append([]*model.SceneClip(nil), clips...)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Index < ordered[b].Index })
	fail := func(err error) (*model.FinalVideo, error) {
		return nil, &model.MergeError{Succeeded: ordered, Err: err}
	}
	if len(ordered) == 0 {
		return fail(errors.New("no clips to merge"))
	}

	name := req.OutputFileName()
	out := wd.OutputPath(name)
	paths := make([]string, 0, len(ordered))
	for _, c := range ordered {
		paths = append(paths, c.Path)
	}

	err := m.Concat.Concat(ctx, &media.ConcatSpec{
		ClipPaths:    paths,
		ManifestPath: wd.ManifestPath(),
		OutputPath:   out,
		StreamCopy:   req.StreamCopy,
	})
	if err != nil {
		_ = os.Remove(out)
		return fail(err)
	}

	// A failed merge leaves no final video behind.
	actual, err := m.Prober.Duration(ctx, out)
	if err != nil {
		_ = os.Remove(out)
		return fail(fmt.Errorf("probe merged video: %w", err))
	}
	info, err := os.Stat(out)
	if err != nil {
		_ = os.Remove(out)
		return fail(err)
	}

	expected := model.TotalDuration(ordered)
	tolerance := m.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultDurationTolerance
	}
	if math.Abs(actual-expected) > tolerance {
		slog.WarnContext(ctx, "merged duration differs from clip total", "job", req.JobID, "actual", actual, "expected", expected)
	}

	return &model.FinalVideo{
		JobID:                req.JobID,
		Name:                 name,
		Path:                 out,
		URL:                  videoURL(m.URLPrefix, name),
		TotalDurationSeconds: actual,
		ExpectedDuration:     expected,
		SizeBytes:            info.Size(),
		Scenes:               model.ClipIndexes(ordered),
	}, nil
}

func videoURL(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultVideoURLPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}

// SequenceMerger is the chain command around Merger.
type SequenceMerger struct {
	cor.BaseCommand
	merger *Merger
}

func NewSequenceMerger(name string, merger *Merger) *SequenceMerger {
	out := &SequenceMerger{BaseCommand: *cor.NewBaseCommand(name), merger: merger}
	out.BaseCommand.InputParamName = ParamClips
	return out
}

func (s *SequenceMerger) Execute(context cor.Context) {
	req, _, wd, err := renderInputs(context)
	if err != nil {
		s.Fail(context, err)
		return
	}
	clips, _ := context.Get(s.GetInputParam()).([]*model.SceneClip)

	video, err := s.merger.Merge(context.GetContext(), req, wd, clips)
	if err != nil {
		s.Fail(context, err)
		return
	}
	slog.InfoContext(context.GetContext(), "video merged", "job", req.JobID, "path", video.Path, "duration", video.TotalDurationSeconds, "scenes", video.Scenes)
	context.Add(ParamFinalVideo, video)
	context.Add(s.GetOutputParam(), video)
	s.Succeed(context)
}
