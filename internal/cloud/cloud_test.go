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

package cloud

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/genai"
)

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("  {\"a\":1}  "))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json{\"a\":1}```"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	base := `
[application]
name = "base"
port = "8080"

[render]
padding_seconds = 0.5
failure_policy = "abort"

[styles.wide]
width = 1920
height = 1080
`
	override := `
[application]
port = "9090"

[render]
failure_policy = "skip"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(override), 0o644))
	t.Setenv(EnvConfigFilePrefix, dir)
	t.Setenv(EnvConfigRuntime, "unit")

	config := NewConfig()
	require.NoError(t, LoadConfig(config))
	assert.Equal(t, "base", config.Application.Name)
	assert.Equal(t, "9090", config.Application.Port)
	assert.Equal(t, 0.5, config.Render.PaddingSeconds)
	assert.Equal(t, "skip", config.Render.FailurePolicy)
	assert.Equal(t, 1920, config.Styles["wide"].Width)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte("[render\n"), 0o644))
	assert.Error(t, LoadConfig(NewConfig()))
}

func TestUsesGenAI(t *testing.T) {
	config := NewConfig()
	assert.False(t, config.UsesGenAI())

	config.Speech.Engines = []speech.EngineConfig{{Name: "espeak", Kind: speech.KindCommand}}
	assert.False(t, config.UsesGenAI())

	config.Speech.Engines = append(config.Speech.Engines, speech.EngineConfig{Name: "gemini", Kind: speech.KindGemini})
	assert.True(t, config.UsesGenAI())

	config = NewConfig()
	config.Visual.GenerateImages = true
	assert.True(t, config.UsesGenAI())
}

func TestGCSObjectURI(t *testing.T) {
	assert.Equal(t, "gs://bucket/videos/a.mp4", (&GCSObject{Bucket: "bucket", Name: "videos/a.mp4"}).URI())
}

// flakyGenerator fails the first failures calls, then answers with text.
type flakyGenerator struct {
	failures int
	calls    int
	text     string
}

func (f *flakyGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("resource exhausted")
	}
	return &genai.GenerateContentResponse{
		Candidates:    []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5},
	}, nil
}

func counters(t *testing.T) (in, out, retry noop.Int64Counter) {
	t.Helper()
	return noop.Int64Counter{}, noop.Int64Counter{}, noop.Int64Counter{}
}

func TestGenerateMultiModalResponseRetries(t *testing.T) {
	defer func(prev time.Duration) { RetryBackoff = prev }(RetryBackoff)
	RetryBackoff = time.Millisecond

	gen := &flakyGenerator{failures: 2, text: "```json\n{\"ok\":true}\n```"}
	model := NewQuotaAwareModel(nil, "test-model", gen, 0)
	in, out, retry := counters(t)

	value, err := GenerateMultiModalResponse(context.Background(), in, out, retry, 0, model, NewTextPart("hello"))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, value)
	assert.Equal(t, 3, gen.calls)

	gen = &flakyGenerator{failures: MaxRetries + 5}
	model = NewQuotaAwareModel(nil, "test-model", gen, 0)
	_, err = GenerateMultiModalResponse(context.Background(), in, out, retry, 0, model, NewTextPart("hello"))
	assert.ErrorContains(t, err, "resource exhausted")
	assert.Equal(t, MaxRetries+1, gen.calls)
}

func TestGenerateMultiModalResponseStopsOnCancel(t *testing.T) {
	gen := &flakyGenerator{failures: 100}
	model := NewQuotaAwareModel(nil, "test-model", gen, 0)
	in, out, retry := counters(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GenerateMultiModalResponse(ctx, in, out, retry, 0, model, NewTextPart("hello"))
	assert.Error(t, err)
	assert.LessOrEqual(t, gen.calls, 1)
}

func TestQuotaAwareModelRateLimit(t *testing.T) {
	gen := &flakyGenerator{text: "x"}
	model := NewQuotaAwareModel(nil, "slow", gen, 1)
	_, err := model.GenerateContent(context.Background(), NewTextPart("a"))
	require.NoError(t, err)

	// The single token is spent; a short deadline expires while waiting.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = model.GenerateContent(ctx, NewTextPart("b"))
	assert.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateContentConfig(t *testing.T) {
	cfg := GenerateContentConfig(VertexAiLLMModel{Temperature: 0.4, TopP: 0.9, TopK: 40, MaxTokens: 100, OutputFormat: "application/json", SystemInstructions: "be brief"})
	assert.Equal(t, float32(0.4), *cfg.Temperature)
	assert.Equal(t, int32(100), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	assert.Len(t, cfg.SafetySettings, 4)
}

func TestServiceClientsNilSafe(t *testing.T) {
	var clients *ServiceClients
	assert.Nil(t, clients.Models())
	clients.Close()
	(&ServiceClients{}).Close()
}
