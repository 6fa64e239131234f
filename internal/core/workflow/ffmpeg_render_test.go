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
	"os/exec"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireFFmpeg skips unless ffmpeg and ffprobe are installed with the
// drawtext filter and fontconfig, which resolves the default font.
func requireFFmpeg(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ffmpeg render in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-filters").Output()
	if err != nil || !strings.Contains(string(out), "drawtext") {
		t.Skip("ffmpeg has no drawtext filter")
	}
	version, err := exec.Command("ffmpeg", "-hide_banner", "-version").Output()
	if err != nil || !strings.Contains(string(version), "--enable-libfontconfig") {
		t.Skip("ffmpeg built without fontconfig")
	}
}

// TestRenderWithFFmpeg runs the production dependencies end to end. The test
// configuration speaks one second of silence per scene through ffmpeg.
func TestRenderWithFFmpeg(t *testing.T) {
	requireFFmpeg(t)

	cfg := *config
	cfg.Render.WorkDir = t.TempDir()
	cfg.Render.OutputDir = t.TempDir()
	deps, err := workflow.NewDependencies(ctx, &cfg, nil, "")
	require.NoError(t, err)
	defer deps.Close()

	w, err := workflow.NewSceneVideoWorkflow(deps)
	require.NoError(t, err)

	req := model.GetExampleRequest()
	req.JobID = "job-ffmpeg"
	req.Style = "tiny"
	req.Scenes[0].TargetDurationSeconds = 2
	req.Scenes[1].TargetDurationSeconds = 2

	video, err := w.Render(ctx, req)
	require.NoError(t, err)

	// One second of audio plus padding is shorter than the 2s target.
	assert.InDelta(t, 4.0, video.TotalDurationSeconds, 0.2)
	assert.InDelta(t, video.ExpectedDuration, video.TotalDurationSeconds, 0.2)
	assert.Positive(t, video.SizeBytes)
	assert.FileExists(t, video.Path)

	status, err := deps.Jobs.Get(ctx, "job-ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, status.State)
}
