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

// Package visual produces the still background of each scene: a downloaded
// image, a generated one, or a deterministic placeholder.
package visual

import (
	"context"
	"errors"
	"fmt"

	"github.com/h2non/filetype"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	DefaultImageModel  = "imagen-3.0-generate-002"
	PortraitAspect     = "9:16"
	defaultImageFormat = "png"
)

// ImageGenerator turns a text prompt into encoded image bytes and the file
// extension matching their format.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, string, error)
}

// ImageModel is the part of genai.Models used for image generation.
type ImageModel interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// ImagenGenerator generates portrait backgrounds with an Imagen model.
type ImagenGenerator struct {
	Model   string
	Images  ImageModel
	Limiter *rate.Limiter
}

func NewImagenGenerator(model string, images ImageModel, requestsPerSecond int) *ImagenGenerator {
	if model == "" {
		model = DefaultImageModel
	}
	limit := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limit = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
	return &ImagenGenerator{Model: model, Images: images, Limiter: limit}
}

func (g *ImagenGenerator) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	if err := g.Limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	resp, err := g.Images.GenerateImages(ctx, g.Model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    PortraitAspect,
	})
	if err != nil {
		return nil, "", fmt.Errorf("generating image: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, "", errors.New("image model returned no image")
	}
	data := resp.GeneratedImages[0].Image.ImageBytes
	if !filetype.IsImage(data) {
		return nil, "", errors.New("image model returned an unrecognised payload")
	}
	return data, extension(data), nil
}

func extension(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || kind.Extension == "" {
		return defaultImageFormat
	}
	return kind.Extension
}
