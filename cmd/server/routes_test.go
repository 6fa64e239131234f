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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/visual"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-scene-video/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *StateManager {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := *test.GetConfig()
	cfg.Render.WorkDir = t.TempDir()
	cfg.Render.OutputDir = t.TempDir()
	fake := test.NewFakeMedia(1.0)
	deps := &workflow.Dependencies{
		Config:   &cfg,
		Visuals:  visual.NewAcquirer(nil, nil),
		Speech:   speech.NewFallback(cfg.Speech.MinOutputBytes, test.NewFakeSpeechEngine("fake-tts")),
		Composer: fake,
		Prober:   fake,
		Concat:   fake,
		Jobs:     services.NewMemoryJobStore(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	state, err := NewStateManager(ctx, deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		state.Close()
	})
	return state
}

func do(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitAndPollRender(t *testing.T) {
	state := newTestState(t)
	r := NewRouter(state)

	req := model.GetExampleRequest()
	req.JobID = "job-http"
	w := do(t, r, http.MethodPost, "/api/v1/videos", req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var out acceptedJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "job-http", out.JobID)
	assert.Equal(t, "/api/v1/videos/job-http/status", out.StatusURL)

	var status model.JobStatus
	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, out.StatusURL, nil)
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.State.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, model.JobSucceeded, status.State)

	w = do(t, r, http.MethodGet, "/api/v1/videos/files/video_job-http.mp4", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
}

func TestSubmitGeneratesJobID(t *testing.T) {
	r := NewRouter(newTestState(t))
	w := do(t, r, http.MethodPost, "/api/v1/videos", model.GetExampleRequest())
	require.Equal(t, http.StatusAccepted, w.Code)

	var out acceptedJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.JobID)
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	r := NewRouter(newTestState(t))

	w := do(t, r, http.MethodPost, "/api/v1/videos", &model.RenderRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := model.GetExampleRequest()
	bad.FailurePolicy = "retry"
	w = do(t, r, http.MethodPost, "/api/v1/videos", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsUnsafeJobID(t *testing.T) {
	state := newTestState(t)
	r := NewRouter(state)

	req := model.GetExampleRequest()
	req.JobID = "../../../tmp/escaped"
	w := do(t, r, http.MethodPost, "/api/v1/videos", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid job id")

	_, err := state.deps.Jobs.Get(context.Background(), req.JobID)
	assert.ErrorIs(t, err, services.ErrJobNotFound)
}

func TestSubmitRejectsActiveJobID(t *testing.T) {
	state := newTestState(t)
	r := NewRouter(state)

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, state.dispatcher.Submit("job-busy", func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	defer close(release)

	req := model.GetExampleRequest()
	req.JobID = "job-busy"
	w := do(t, r, http.MethodPost, "/api/v1/videos", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestContentVideoNotConfigured(t *testing.T) {
	r := NewRouter(newTestState(t))
	w := do(t, r, http.MethodPost, "/api/v1/videos/from-content", &model.ContentRequest{URL: "https://example.com"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestStatusNotFound(t *testing.T) {
	r := NewRouter(newTestState(t))
	w := do(t, r, http.MethodGet, "/api/v1/videos/unknown/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVideoFiles(t *testing.T) {
	state := newTestState(t)
	r := NewRouter(state)

	w := do(t, r, http.MethodGet, "/api/v1/videos/files/missing.mp4", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/videos/files/..", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)

	path := filepath.Join(state.deps.Config.Render.OutputDir, "ready.mp4")
	require.NoError(t, os.WriteFile(path, []byte("mp4"), 0o644))
	w = do(t, r, http.MethodGet, "/api/v1/videos/files/ready.mp4", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Cache-Control"))
}

func TestHealthz(t *testing.T) {
	r := NewRouter(newTestState(t))
	w := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
