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

package visual

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// Source downloads an image by URL.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Acquirer resolves a scene's visual reference to an image file. URLs are
// downloaded, other text is used as a generation prompt when a generator is
// configured, and everything else falls back to the placeholder.
type Acquirer struct {
	Fetcher   Source
	Generator ImageGenerator // Optional.
}

func NewAcquirer(fetcher Source, generator ImageGenerator) *Acquirer {
	return &Acquirer{Fetcher: fetcher, Generator: generator}
}

// Acquire writes the scene background to basePath plus the extension of the
// image format and returns the path and where the image came from. Remote
// failures are logged and replaced by the placeholder; only a failure to
// render or write the file is returned.
func (a *Acquirer) Acquire(ctx context.Context, index int, ref string, style *model.RenderStyle, basePath string) (string, model.VisualSource, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
	case IsURL(ref) && a.Fetcher != nil:
		data, ext, err := a.Fetcher.Fetch(ctx, ref)
		if err == nil {
			path, err := write(basePath, ext, data)
			return path, model.VisualFetched, err
		}
		slog.WarnContext(ctx, "visual fetch failed, using placeholder", "scene", index, "url", ref, "error", err)
	case !IsURL(ref) && a.Generator != nil:
		data, ext, err := a.Generator.Generate(ctx, ref)
		if err == nil {
			path, err := write(basePath, ext, data)
			return path, model.VisualGenerated, err
		}
		slog.WarnContext(ctx, "visual generation failed, using placeholder", "scene", index, "error", err)
	}

	data, err := Placeholder(index, style)
	if err != nil {
		return "", model.VisualPlaceholder, err
	}
	path, err := write(basePath, defaultImageFormat, data)
	return path, model.VisualPlaceholder, err
}

// IsURL reports whether ref is an absolute http, https or gs URL.
func IsURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "gs":
		return u.Host != ""
	}
	return false
}

func write(basePath, ext string, data []byte) (string, error) {
	path := basePath + "." + ext
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing visual %s: %w", path, err)
	}
	return path, nil
}
