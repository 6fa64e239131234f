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

package media_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/media"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := media.ParseDuration("12.480000\n")
	require.NoError(t, err)
	assert.InDelta(t, 12.48, d, 1e-9)

	for _, bad := range []string{"", "N/A", "abc", "0", "-1"} {
		_, err := media.ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestComposeArgs(t *testing.T) {
	spec := &media.ComposeSpec{
		Index:           2,
		ImagePath:       "/w/images/scene_002.png",
		AudioPath:       "/w/audio/scene_002.mp3",
		Lines:           []string{"Bye"},
		DurationSeconds: 6.1,
		Style:           model.DefaultRenderStyle(),
		OutputPath:      "/w/clips/scene_002.mp4",
	}
	args := media.ComposeArgs(spec, media.DefaultEncoding())
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-loop 1 -framerate 25 -i /w/images/scene_002.png")
	assert.Contains(t, joined, "-i /w/audio/scene_002.mp3")
	assert.Contains(t, joined, "-af apad")
	assert.Contains(t, joined, "-t 6.100")
	assert.Contains(t, joined, "-r 25")
	assert.Contains(t, joined, "-c:a aac -b:a 192k")
	assert.Equal(t, "/w/clips/scene_002.mp4", args[len(args)-1])
}

func TestConcatArgs(t *testing.T) {
	spec := &media.ConcatSpec{ManifestPath: "/w/concat.txt", OutputPath: "/out/v.mp4"}
	reencode := strings.Join(media.ConcatArgs(spec, media.DefaultEncoding()), " ")
	assert.Contains(t, reencode, "-f concat -safe 0 -i /w/concat.txt")
	assert.Contains(t, reencode, "-profile:v high -level:v 4.0")
	assert.Contains(t, reencode, "-pix_fmt yuv420p")
	assert.Contains(t, reencode, "-b:a 192k")
	assert.Contains(t, reencode, "-movflags +faststart /out/v.mp4")

	spec.StreamCopy = true
	copyArgs := strings.Join(media.ConcatArgs(spec, media.DefaultEncoding()), " ")
	assert.Contains(t, copyArgs, "-c copy")
	assert.NotContains(t, copyArgs, "libx264")
}

func TestManifestPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	clips := []string{
		filepath.Join(dir, "scene_003.mp4"),
		filepath.Join(dir, "scene_001.mp4"),
		filepath.Join(dir, "it's.mp4"),
	}
	content, err := media.Manifest(clips)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "file '"+clips[0]+"'", lines[0])
	assert.Equal(t, "file '"+clips[1]+"'", lines[1])
	assert.Contains(t, lines[2], `it'\''s.mp4`)

	_, err = media.Manifest(nil)
	assert.Error(t, err)

	path := filepath.Join(dir, "concat.txt")
	require.NoError(t, media.WriteManifest(path, clips))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(written))
}

// writeScript creates an executable shell script standing in for a media tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestDurationRunsProbe(t *testing.T) {
	probe := writeScript(t, `echo "7.250000"`)
	f := media.NewFFmpeg("", probe, time.Second, media.Encoding{})

	d, err := f.Duration(context.Background(), "/any/file.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 7.25, d, 1e-9)
}

func TestToolFailureCarriesStderr(t *testing.T) {
	probe := writeScript(t, `echo "moov atom not found" >&2; exit 1`)
	f := media.NewFFmpeg("", probe, time.Second, media.Encoding{})

	_, err := f.Duration(context.Background(), "/broken.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moov atom not found")
	assert.Contains(t, err.Error(), probe)
}

func TestToolTimeout(t *testing.T) {
	probe := writeScript(t, `exec sleep 5`)
	f := media.NewFFmpeg("", probe, 50*time.Millisecond, media.Encoding{})

	_, err := f.Duration(context.Background(), "/slow.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComposeRequiresStyle(t *testing.T) {
	f := media.NewFFmpeg("", "", 0, media.Encoding{})
	assert.Error(t, f.Compose(context.Background(), &media.ComposeSpec{}))
}
