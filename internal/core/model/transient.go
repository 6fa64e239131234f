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

// Package model defines the data passed between the stages of the render
// pipeline. This file holds the transient, per-run artifacts: a Scene goes
// in, a SynthesizedAsset and a SceneClip are derived from it, and all clips
// end up in one FinalVideo. None of these outlive the job that created them.
package model

import (
	"math"
	"strings"
)

// DefaultPaddingSeconds is added to the measured speech length so narration
// never ends on the last frame of a clip.
const DefaultPaddingSeconds = 0.5

// Scene is one narrative beat of a video.
type Scene struct {
	// Text is the narration. Explicit line breaks define the subtitle rows;
	// they are not spoken.
	Text string `json:"text"`
	// VisualRef is an image URL or an image generation prompt. Empty means a
	// placeholder background is synthesized.
	VisualRef string `json:"visual_ref,omitempty"`
	// TargetDurationSeconds is the minimum length of the scene clip.
	TargetDurationSeconds float64 `json:"target_duration_seconds"`
}

// Narration returns the text as it is spoken.
func (s *Scene) Narration() string {
	return NormalizeNarration(s.Text)
}

// NormalizeNarration prepares subtitle text for speaking. Line breaks only
// shape the subtitles, so they become spaces and whitespace runs collapse.
func NormalizeNarration(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// VisualSource records where a scene background came from.
type VisualSource string

const (
	VisualFetched     VisualSource = "fetched"
	VisualGenerated   VisualSource = "generated"
	VisualPlaceholder VisualSource = "placeholder"
)

// SynthesizedAsset is the background image and narration audio produced for
// one scene.
type SynthesizedAsset struct {
	Index                int          `json:"index"` // 1-based position of the scene in the request.
	Scene                *Scene       `json:"scene"`
	VisualPath           string       `json:"visual_path"`
	VisualSource         VisualSource `json:"visual_source"`
	AudioPath            string       `json:"audio_path"`
	SpeechEngine         string       `json:"speech_engine"`
	AudioDurationSeconds float64      `json:"audio_duration_seconds"` // Probed by the composer, never estimated.
}

// SceneClip is one fully composed and encoded scene.
type SceneClip struct {
	Index                    int     `json:"index"`
	Path                     string  `json:"path"`
	EffectiveDurationSeconds float64 `json:"effective_duration_seconds"`
	SubtitleLines            int     `json:"subtitle_lines"`
}

// FinalVideo is the concatenation of every successful clip, in scene order.
type FinalVideo struct {
	JobID                string  `json:"job_id"`
	Name                 string  `json:"name"`
	Path                 string  `json:"path"`
	URL                  string  `json:"url,omitempty"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	ExpectedDuration     float64 `json:"expected_duration_seconds"`
	SizeBytes            int64   `json:"size_bytes"`
	Scenes               []int   `json:"scenes"`
}

// EffectiveDuration is the length of a scene clip: the target duration, or
// the audio length plus padding when that is longer.
func EffectiveDuration(targetSeconds, audioSeconds, paddingSeconds float64) float64 {
	return math.Max(targetSeconds, audioSeconds+paddingSeconds)
}

// TotalDuration sums the effective durations of the given clips.
func TotalDuration(clips []*SceneClip) float64 {
	total := 0.0
	for _, c := range clips {
		total += c.EffectiveDurationSeconds
	}
	return total
}

// ClipIndexes returns the scene indexes of the given clips, in order.
func ClipIndexes(clips []*SceneClip) []int {
	out := make([]int, 0, len(clips))
	for _, c := range clips {
		out = append(out, c.Index)
	}
	return out
}
