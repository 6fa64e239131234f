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

package test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/media"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
)

const durationPrefix = "duration="

// FakeMedia stands in for ffmpeg. Files it writes start with a
// "duration=<seconds>" line, which Duration reads back; any other file
// (narration audio) measures AudioSeconds.
type FakeMedia struct {
	AudioSeconds float64
	// FailCompose makes Compose fail for the given scene indexes.
	FailCompose map[int]error
	// FailConcat makes every Concat call fail.
	FailConcat error
	// FailProbe makes Duration fail for paths containing the key.
	FailProbe map[string]error

	mu       sync.Mutex
	composed []*media.ComposeSpec
	concats  []*media.ConcatSpec
}

func NewFakeMedia(audioSeconds float64) *FakeMedia {
	return &FakeMedia{AudioSeconds: audioSeconds}
}

func (f *FakeMedia) Duration(_ context.Context, path string) (float64, error) {
	for key, err := range f.FailProbe {
		if strings.Contains(path, key) {
			return 0, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if line, _, _ := bytes.Cut(data, []byte("\n")); bytes.HasPrefix(line, []byte(durationPrefix)) {
		return strconv.ParseFloat(string(bytes.TrimPrefix(line, []byte(durationPrefix))), 64)
	}
	return f.AudioSeconds, nil
}

func (f *FakeMedia) Compose(ctx context.Context, spec *media.ComposeSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := f.FailCompose[spec.Index]; ok {
		return err
	}
	for _, in := range []string{spec.ImagePath, spec.AudioPath} {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("missing input: %w", err)
		}
	}
	f.mu.Lock()
	copied := *spec
	f.composed = append(f.composed, &copied)
	f.mu.Unlock()
	return writeDuration(spec.OutputPath, spec.DurationSeconds)
}

func (f *FakeMedia) Concat(ctx context.Context, spec *media.ConcatSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.FailConcat != nil {
		return f.FailConcat
	}
	if err := media.WriteManifest(spec.ManifestPath, spec.ClipPaths); err != nil {
		return err
	}
	total := 0.0
	for _, clip := range spec.ClipPaths {
		d, err := f.Duration(ctx, clip)
		if err != nil {
			return err
		}
		total += d
	}
	f.mu.Lock()
	copied := *spec
	f.concats = append(f.concats, &copied)
	f.mu.Unlock()
	return writeDuration(spec.OutputPath, total)
}

// Composed returns the specs of every successful Compose call.
func (f *FakeMedia) Composed() []*media.ComposeSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*media.ComposeSpec(nil), f.composed...)
}

// ComposedFor returns the spec composed for a scene index, or nil.
func (f *FakeMedia) ComposedFor(index int) *media.ComposeSpec {
	for _, s := range f.Composed() {
		if s.Index == index {
			return s
		}
	}
	return nil
}

// Concats returns the specs of every successful Concat call.
func (f *FakeMedia) Concats() []*media.ConcatSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*media.ConcatSpec(nil), f.concats...)
}

func writeDuration(path string, seconds float64) error {
	body := fmt.Sprintf("%s%.3f\n%s", durationPrefix, seconds, strings.Repeat("\x00", 1024))
	return os.WriteFile(path, []byte(body), 0o644)
}

// FakeSpeechEngine writes Bytes bytes of silence for every request, or fails
// when the narration contains FailOn.
type FakeSpeechEngine struct {
	EngineName string
	Ext        string
	Bytes      int
	FailOn     string

	mu    sync.Mutex
	texts []string
}

func NewFakeSpeechEngine(name string) *FakeSpeechEngine {
	return &FakeSpeechEngine{EngineName: name, Ext: "mp3", Bytes: 4096}
}

func (e *FakeSpeechEngine) Name() string      { return e.EngineName }
func (e *FakeSpeechEngine) Extension() string { return e.Ext }

func (e *FakeSpeechEngine) Synthesize(ctx context.Context, req *speech.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.FailOn != "" && strings.Contains(req.Text, e.FailOn) {
		return fmt.Errorf("%s cannot speak %q", e.EngineName, req.Text)
	}
	e.mu.Lock()
	e.texts = append(e.texts, req.Text)
	e.mu.Unlock()
	return os.WriteFile(req.OutputPath, make([]byte, e.Bytes), 0o644)
}

// Texts returns every narration the engine spoke.
func (e *FakeSpeechEngine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// FakeImageGenerator answers every prompt with Data, or fails with Err.
type FakeImageGenerator struct {
	Data []byte
	Ext  string
	Err  error

	mu      sync.Mutex
	prompts []string
}

func (g *FakeImageGenerator) Generate(_ context.Context, prompt string) ([]byte, string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Err != nil {
		return nil, "", g.Err
	}
	return g.Data, g.Ext, nil
}

func (g *FakeImageGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
