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

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"

	// stderrTail bounds how much tool output is attached to an error.
	stderrTail = 2048
)

// FFmpeg implements Prober, Composer and Concatenator with the ffmpeg and
// ffprobe command line tools. Every invocation gets its own timeout.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration // Zero disables the per-invocation timeout.
	Encoding    Encoding
}

// NewFFmpeg returns a backend using the given binaries. Empty paths fall back
// to the binaries on PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string, timeout time.Duration, enc Encoding) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = DefaultFFmpegPath
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = DefaultFFprobePath
	}
	return &FFmpeg{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Timeout:     timeout,
		Encoding:    enc.WithDefaults(),
	}
}

// ProbeArgs asks ffprobe for the container duration only, as a bare number.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// ParseDuration reads the ffprobe output produced by ProbeArgs.
func ParseDuration(out string) (float64, error) {
	value := strings.TrimSpace(out)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("no duration reported: %q", value)
	}
	d, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %v", d)
	}
	return d, nil
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := f.run(ctx, f.FFprobePath, ProbeArgs(path))
	if err != nil {
		return 0, err
	}
	d, err := ParseDuration(string(out))
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	return d, nil
}

// ComposeArgs builds the ffmpeg arguments for one scene. The still is looped
// at the style frame rate, the audio is padded with silence and the output is
// cut at the effective duration, so the clip length is exact and the speech
// never runs past it.
func ComposeArgs(spec *ComposeSpec, enc Encoding) []string {
	fps := strconv.Itoa(spec.Style.FrameRate)
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-loop", "1", "-framerate", fps, "-i", spec.ImagePath,
		"-i", spec.AudioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-vf", VideoFilter(spec, enc),
		"-af", "apad",
		"-t", formatSeconds(spec.DurationSeconds),
		"-r", fps,
		"-c:v", enc.VideoCodec, "-preset", enc.Preset, "-crf", strconv.Itoa(enc.CRF),
		"-pix_fmt", enc.PixelFormat,
		"-c:a", enc.AudioCodec, "-b:a", enc.AudioBitrate,
		"-ar", strconv.Itoa(enc.SampleRate), "-ac", strconv.Itoa(enc.Channels),
		spec.OutputPath,
	}
}

func (f *FFmpeg) Compose(ctx context.Context, spec *ComposeSpec) error {
	if spec.Style == nil {
		return errors.New("compose spec has no render style")
	}
	_, err := f.run(ctx, f.FFmpegPath, ComposeArgs(spec, f.Encoding))
	return err
}

// ConcatArgs builds the merge arguments. Re-encoding normalises profile,
// level, pixel format and audio; stream copy only remuxes.
func ConcatArgs(spec *ConcatSpec, enc Encoding) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", spec.ManifestPath,
	}
	if spec.StreamCopy {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-c:v", enc.VideoCodec, "-preset", enc.Preset, "-crf", strconv.Itoa(enc.CRF),
			"-profile:v", enc.Profile, "-level:v", enc.Level,
			"-pix_fmt", enc.PixelFormat,
			"-c:a", enc.AudioCodec, "-b:a", enc.AudioBitrate,
			"-ar", strconv.Itoa(enc.SampleRate), "-ac", strconv.Itoa(enc.Channels),
		)
	}
	return append(args, "-movflags", "+faststart", spec.OutputPath)
}

func (f *FFmpeg) Concat(ctx context.Context, spec *ConcatSpec) error {
	if err := WriteManifest(spec.ManifestPath, spec.ClipPaths); err != nil {
		return err
	}
	_, err := f.run(ctx, f.FFmpegPath, ConcatArgs(spec, f.Encoding))
	return err
}

// run executes a tool and returns its stdout. A failure is wrapped with the
// tool name and the tail of its stderr.
func (f *FFmpeg) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	slog.DebugContext(ctx, "media tool finished", "tool", bin, "elapsed", time.Since(start), "error", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", bin, err, tail(stderr.String(), stderrTail))
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
