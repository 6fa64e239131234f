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

// Package speech turns narration text into audio files. Engines share a
// single contract (text, language, voice, output path) so they can be
// chained into an ordered fallback list.
package speech

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	KindCommand = "command"
	KindGemini  = "gemini"
)

// Request is a single synthesis call.
type Request struct {
	Text       string
	Language   string
	Voice      string
	OutputPath string
}

// Engine renders a Request into an audio file at Request.OutputPath.
type Engine interface {
	Name() string
	// Extension is the file extension (without the dot) the engine writes.
	Extension() string
	Synthesize(ctx context.Context, req *Request) error
}

// EngineConfig describes one engine in the configured fallback order.
type EngineConfig struct {
	Name           string   `toml:"name"`
	Kind           string   `toml:"kind"`      // "command" or "gemini"
	Command        string   `toml:"command"`   // Binary for command engines.
	Args           []string `toml:"args"`      // Argument template, see CommandEngine.
	Extension      string   `toml:"extension"` // Output extension, e.g. "mp3".
	Model          string   `toml:"model"`     // Model name for gemini engines.
	RateLimit      int      `toml:"rate_limit"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// NewEngine builds an engine from configuration. The generator is only
// required for gemini engines.
func NewEngine(cfg EngineConfig, generator ContentGenerator) (Engine, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	limiter := NewLimiter(cfg.RateLimit)
	switch cfg.Kind {
	case KindCommand, "":
		if cfg.Command == "" {
			return nil, fmt.Errorf("speech engine %q has no command", cfg.Name)
		}
		return NewCommandEngine(cfg.Name, cfg.Command, cfg.Args, cfg.Extension, timeout, limiter), nil
	case KindGemini:
		if generator == nil {
			return nil, fmt.Errorf("speech engine %q needs a generative AI client", cfg.Name)
		}
		return NewGeminiEngine(cfg.Name, cfg.Model, generator, timeout, limiter), nil
	default:
		return nil, fmt.Errorf("speech engine %q has unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// NewLimiter returns a limiter allowing perSecond calls per second with an
// equal burst. Zero or negative means unlimited.
func NewLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
