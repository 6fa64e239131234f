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

// Package workflow_test contains the tests of the render workflows. This
// file provides the suite setup: configuration, logging and telemetry are
// initialized once in TestMain, and newTestDeps builds per-test dependencies
// on the in-process fakes so no test needs ffmpeg, a TTS tool or the cloud.
package workflow_test

import (
	"context"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/visual"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
	"github.com/jaycherian/gcp-go-scene-video/internal/telemetry"
	test "github.com/jaycherian/gcp-go-scene-video/internal/testutil"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

var (
	ctx    context.Context
	config *cloud.Config
)

const tName = "cloud.google.com/scene-video/tests/workflow"

var (
	tracer = otel.Tracer(tName)
	logger = otelslog.NewLogger(tName)
)

func TestMain(m *testing.M) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(context.Background())

	config = test.GetConfig()

	closeLogs, err := telemetry.SetupLogging(config.Telemetry)
	if err != nil {
		panic(err)
	}
	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		panic(err)
	}
	logger.Info("completed test setup")

	exitCode := m.Run()

	if err := shutdown(ctx); err != nil {
		logger.Error("failed to shutdown telemetry", "error", err)
	}
	_ = closeLogs()
	cancel()
	os.Exit(exitCode)
}

// testRig bundles the fakes a test can inspect after a run.
type testRig struct {
	deps   *workflow.Dependencies
	media  *test.FakeMedia
	speech *test.FakeSpeechEngine
	jobs   *services.MemoryJobStore
}

// newTestDeps copies the suite configuration with per-test directories and
// wires the fakes. Narration always measures audioSeconds.
func newTestDeps(t *testing.T, audioSeconds float64) *testRig {
	t.Helper()
	cfg := *config
	cfg.Render.WorkDir = t.TempDir()
	cfg.Render.OutputDir = t.TempDir()

	rig := &testRig{
		media:  test.NewFakeMedia(audioSeconds),
		speech: test.NewFakeSpeechEngine("fake-tts"),
		jobs:   services.NewMemoryJobStore(),
	}
	rig.deps = &workflow.Dependencies{
		Config:   &cfg,
		Visuals:  visual.NewAcquirer(nil, nil),
		Speech:   speech.NewFallback(cfg.Speech.MinOutputBytes, rig.speech),
		Composer: rig.media,
		Prober:   rig.media,
		Concat:   rig.media,
		Jobs:     rig.jobs,
	}
	return rig
}
