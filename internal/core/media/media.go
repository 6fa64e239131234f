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

// Package media wraps the three media operations the render pipeline needs:
// probing a file's duration, composing one scene clip from an image and a
// speech track, and concatenating clips into the final video.
//
// Each operation is a small interface (Prober, Composer, Concatenator) so
// the pipeline can run against the FFmpeg command line tools in production
// and against in-memory fakes in tests. The filter and argument builders are
// plain functions over the specs below; they carry all of the layout logic
// (subtitle stacking, zoom expressions, encoder profile) and are tested
// without spawning a process.
package media

import (
	"context"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// Prober measures media files.
type Prober interface {
	// Duration returns the length of the media at path in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}

// Composer encodes one scene clip.
type Composer interface {
	Compose(ctx context.Context, spec *ComposeSpec) error
}

// Concatenator joins clips into one file.
type Concatenator interface {
	Concat(ctx context.Context, spec *ConcatSpec) error
}

// ComposeSpec describes one scene clip.
type ComposeSpec struct {
	Index           int      // 1-based scene index; selects the Ken Burns direction.
	ImagePath       string   // Background still.
	AudioPath       string   // Narration track.
	Lines           []string // Subtitle rows, top to bottom, unescaped.
	DurationSeconds float64  // Effective clip length; audio is padded or cut to it.
	Style           *model.RenderStyle
	OutputPath      string
}

// ConcatSpec describes a merge.
type ConcatSpec struct {
	ClipPaths    []string // In final playback order.
	ManifestPath string   // Where the concat list is written.
	OutputPath   string
	StreamCopy   bool // Skip re-encoding; only valid for uniform inputs.
}

// Encoding is the normalised output profile shared by clips and the final
// merge.
type Encoding struct {
	VideoCodec   string `toml:"video_codec"`
	Preset       string `toml:"preset"`
	CRF          int    `toml:"crf"`
	Profile      string `toml:"profile"`
	Level        string `toml:"level"`
	PixelFormat  string `toml:"pixel_format"`
	AudioCodec   string `toml:"audio_codec"`
	AudioBitrate string `toml:"audio_bitrate"`
	SampleRate   int    `toml:"sample_rate"`
	Channels     int    `toml:"channels"`
}

// DefaultEncoding is H.264 high@4.0 yuv420p with 192k stereo AAC.
func DefaultEncoding() Encoding {
	return Encoding{
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          23,
		Profile:      "high",
		Level:        "4.0",
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		SampleRate:   44100,
		Channels:     2,
	}
}

// WithDefaults fills unset fields from DefaultEncoding.
func (e Encoding) WithDefaults() Encoding {
	d := DefaultEncoding()
	if e.VideoCodec == "" {
		e.VideoCodec = d.VideoCodec
	}
	if e.Preset == "" {
		e.Preset = d.Preset
	}
	if e.CRF <= 0 {
		e.CRF = d.CRF
	}
	if e.Profile == "" {
		e.Profile = d.Profile
	}
	if e.Level == "" {
		e.Level = d.Level
	}
	if e.PixelFormat == "" {
		e.PixelFormat = d.PixelFormat
	}
	if e.AudioCodec == "" {
		e.AudioCodec = d.AudioCodec
	}
	if e.AudioBitrate == "" {
		e.AudioBitrate = d.AudioBitrate
	}
	if e.SampleRate <= 0 {
		e.SampleRate = d.SampleRate
	}
	if e.Channels <= 0 {
		e.Channels = d.Channels
	}
	return e
}
