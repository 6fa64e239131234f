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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// DefaultMinOutputBytes is the size under which an audio file is treated as
// a failed generation.
const DefaultMinOutputBytes = 1000

// ErrOutputTooSmall marks an engine run that exited cleanly but produced a
// truncated or empty file.
var ErrOutputTooSmall = errors.New("audio output below minimum size")

// Result describes the attempt that succeeded.
type Result struct {
	Engine string
	Path   string
	Bytes  int64
}

// Fallback tries its engines in order and stops at the first one that
// produces a large enough file.
type Fallback struct {
	Engines        []Engine
	MinOutputBytes int64
}

func NewFallback(minOutputBytes int64, engines ...Engine) *Fallback {
	if minOutputBytes <= 0 {
		minOutputBytes = DefaultMinOutputBytes
	}
	return &Fallback{Engines: engines, MinOutputBytes: minOutputBytes}
}

// Synthesize speaks text and writes the audio next to basePath, using the
// extension of whichever engine succeeded. The text is normalised first.
// When every engine fails the returned error joins all attempt errors.
func (f *Fallback) Synthesize(ctx context.Context, text, language, voice, basePath string) (*Result, error) {
	if len(f.Engines) == 0 {
		return nil, errors.New("no speech engines configured")
	}
	spoken := model.NormalizeNarration(text)
	if spoken == "" {
		return nil, errors.New("narration is empty")
	}

	var errs []error
	for _, engine := range f.Engines {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		path := basePath + "." + engine.Extension()
		req := &Request{Text: spoken, Language: language, Voice: voice, OutputPath: path}

		size, err := f.attempt(ctx, engine, req)
		if err == nil {
			return &Result{Engine: engine.Name(), Path: path, Bytes: size}, nil
		}
		slog.WarnContext(ctx, "speech engine failed", "engine", engine.Name(), "path", path, "error", err)
		_ = os.Remove(path)
		errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
	}
	return nil, errors.Join(errs...)
}

func (f *Fallback) attempt(ctx context.Context, engine Engine, req *Request) (int64, error) {
	if err := engine.Synthesize(ctx, req); err != nil {
		return 0, err
	}
	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("no audio written: %w", err)
	}
	if info.Size() < f.MinOutputBytes {
		return info.Size(), fmt.Errorf("%w: %d < %d bytes", ErrOutputTooSmall, info.Size(), f.MinOutputBytes)
	}
	return info.Size(), nil
}
