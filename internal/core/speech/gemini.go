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

package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	DefaultGeminiSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultGeminiVoice       = "Kore"

	// Gemini speech output is raw 16 bit little endian mono PCM.
	GeminiSampleRate = 24000
)

// ContentGenerator is the part of genai.Models used for speech. *genai.Models
// satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiEngine synthesizes speech with a Gemini TTS model and stores the
// result as a WAV file.
type GeminiEngine struct {
	name      string
	model     string
	generator ContentGenerator
	timeout   time.Duration
	limiter   *rate.Limiter
}

func NewGeminiEngine(name, model string, generator ContentGenerator, timeout time.Duration, limiter *rate.Limiter) *GeminiEngine {
	if name == "" {
		name = "gemini"
	}
	if model == "" {
		model = DefaultGeminiSpeechModel
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &GeminiEngine{name: name, model: model, generator: generator, timeout: timeout, limiter: limiter}
}

func (g *GeminiEngine) Name() string      { return g.name }
func (g *GeminiEngine) Extension() string { return "wav" }

func (g *GeminiEngine) Synthesize(ctx context.Context, req *Request) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: waiting for rate limit: %w", g.name, err)
	}
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	voice := req.Voice
	if voice == "" {
		voice = DefaultGeminiVoice
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: req.Language,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := g.generator.GenerateContent(ctx, g.model, genai.Text(req.Text), config)
	if err != nil {
		return fmt.Errorf("%s failed: %w", g.name, err)
	}
	pcm, err := audioData(resp)
	if err != nil {
		return fmt.Errorf("%s failed: %w", g.name, err)
	}

	var buf bytes.Buffer
	if err := WriteWAV(&buf, pcm, GeminiSampleRate, 1, 16); err != nil {
		return err
	}
	if err := os.WriteFile(req.OutputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%s: writing %s: %w", g.name, req.OutputPath, err)
	}
	return nil
}

func audioData(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil {
		return nil, errors.New("empty response")
	}
	var pcm []byte
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				pcm = append(pcm, part.InlineData.Data...)
			}
		}
	}
	if len(pcm) == 0 {
		return nil, errors.New("response carried no audio")
	}
	return pcm, nil
}
