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

// Package workflow defines the high-level business logic orchestrations,
// combining the commands into the render pipelines. This file builds the
// capability implementations the workflows run on from the configuration
// and the initialized cloud clients.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/media"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/visual"
)

// Dependencies are the capabilities the render workflows use. Tests build
// one by hand with fakes; NewDependencies builds the production set.
type Dependencies struct {
	Config        *cloud.Config
	Visuals       commands.VisualAcquirer
	Speech        commands.SpeechSynthesizer
	Composer      media.Composer
	Prober        media.Prober
	Concat        media.Concatenator
	Jobs          services.JobStore
	Content       services.ContentSource             // Nil disables the content workflow.
	ScriptModel   *cloud.QuotaAwareGenerativeAIModel // Nil disables the content workflow.
	StorageClient *storage.Client                    // Nil disables uploads.
	closers       []func() error
}

// Close releases resources owned by the dependencies, such as the SQLite
// job store.
func (d *Dependencies) Close() error {
	var err error
	for _, c := range d.closers {
		err = errors.Join(err, c())
	}
	d.closers = nil
	return err
}

// NewDependencies wires the production implementations: ffmpeg for media,
// the configured speech engines in fallback order, HTTP fetch with optional
// Imagen generation for visuals, and the configured job store.
func NewDependencies(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients, scriptModelName string) (*Dependencies, error) {
	deps := &Dependencies{Config: config}
	if clients == nil {
		clients = &cloud.ServiceClients{}
	}

	ff := media.NewFFmpeg(config.Render.FFmpegPath, config.Render.FFprobePath, config.Render.EncodeTimeout(), config.Render.Encoding)
	deps.Composer, deps.Prober, deps.Concat = ff, ff, ff

	var generator speech.ContentGenerator
	var images visual.ImageModel
	if models := clients.Models(); models != nil {
		generator, images = models, models
	}

	engines := make([]speech.Engine, 0, len(config.Speech.Engines))
	for _, ec := range config.Speech.Engines {
		engine, err := speech.NewEngine(ec, generator)
		if err != nil {
			return nil, fmt.Errorf("speech engine %q: %w", ec.Name, err)
		}
		engines = append(engines, engine)
	}
	if len(engines) == 0 {
		return nil, errors.New("no speech engines configured")
	}
	deps.Speech = speech.NewFallback(config.Speech.MinOutputBytes, engines...)

	var imageGenerator visual.ImageGenerator
	if config.Visual.GenerateImages {
		if images == nil {
			return nil, errors.New("image generation requires a genai client")
		}
		imageGenerator = visual.NewImagenGenerator(config.Visual.ImageModel, images, config.Visual.RateLimit)
	}
	var fetcher visual.Source = visual.NewFetcher(config.Visual.FetchTimeout(), config.Visual.UserAgent)
	if clients.StorageClient != nil {
		fetcher = visual.NewGCSFetcher(clients.StorageClient, fetcher)
	}
	deps.Visuals = visual.NewAcquirer(fetcher, imageGenerator)

	jobs, closer, err := newJobStore(ctx, config, clients)
	if err != nil {
		return nil, err
	}
	deps.Jobs = jobs
	if closer != nil {
		deps.closers = append(deps.closers, closer)
	}

	if config.ContentSource.Endpoint != "" {
		deps.Content = services.NewHTTPContentSource(config.ContentSource.Endpoint, time.Duration(config.ContentSource.TimeoutSeconds)*time.Second)
	}
	deps.ScriptModel = clients.AgentModels[scriptModelName]
	if config.Storage.VideoBucket != "" {
		deps.StorageClient = clients.StorageClient
	}
	return deps, nil
}

func newJobStore(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (services.JobStore, func() error, error) {
	switch config.JobStore.Kind {
	case "", cloud.JobStoreMemory:
		return services.NewMemoryJobStore(), nil, nil
	case cloud.JobStoreSQLite:
		store, err := services.NewSQLiteJobStore(ctx, config.JobStore.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case cloud.JobStoreBigQuery:
		if clients.BiqQueryClient == nil {
			return nil, nil, errors.New("bigquery job store requires a bigquery client")
		}
		store := services.NewBigQueryJobStore(clients.BiqQueryClient, config.JobStore.Dataset, config.JobStore.Table)
		if err := store.EnsureTable(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown job store kind %q", config.JobStore.Kind)
	}
}
