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
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
)

// ScriptModelName is the agent model the content workflow writes scripts with.
const ScriptModelName = "script-flash"

// StateManager holds the components shared by the handlers and listeners.
type StateManager struct {
	config     *cloud.Config
	cloud      *cloud.ServiceClients
	deps       *workflow.Dependencies
	render     *workflow.SceneVideoWorkflow
	content    *workflow.ContentVideoWorkflow // Nil when no content source or script model is configured.
	dispatcher *workflow.Dispatcher
	videos     *services.VideoService
}

// SetupOS defaults the configuration directory and runtime for a server
// started from the repository root. Values already in the environment win.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() (*cloud.Config, error) {
	if err := SetupOS(); err != nil {
		return nil, err
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// InitState creates the cloud clients the configuration needs and builds
// the workflows on top of them. ctx bounds the lifetime of every job.
func InitState(ctx context.Context, config *cloud.Config) (*StateManager, error) {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}
	deps, err := workflow.NewDependencies(ctx, config, cloudClients, ScriptModelName)
	if err != nil {
		cloudClients.Close()
		return nil, err
	}
	state, err := NewStateManager(ctx, deps)
	if err != nil {
		_ = deps.Close()
		cloudClients.Close()
		return nil, err
	}
	state.cloud = cloudClients
	state.videos.StorageClient = deps.StorageClient
	state.videos.IAMClient = cloudClients.IAMClient
	return state, nil
}

// NewStateManager builds the workflows and services from ready dependencies.
func NewStateManager(ctx context.Context, deps *workflow.Dependencies) (*StateManager, error) {
	config := deps.Config
	render, err := workflow.NewSceneVideoWorkflow(deps)
	if err != nil {
		return nil, err
	}
	state := &StateManager{
		config:     config,
		deps:       deps,
		render:     render,
		dispatcher: workflow.NewDispatcher(ctx, deps.Jobs, config.Render.JobWorkers),
		videos: &services.VideoService{
			OutputDir:   config.Render.OutputDir,
			SignerEmail: config.Application.SignerServiceAccountEmail,
			Bucket:      config.Storage.VideoBucket,
			Prefix:      config.Storage.VideoPrefix,
			Expiry:      time.Duration(config.Storage.SignedURLMinutes) * time.Minute,
		},
	}
	if deps.Content != nil && deps.ScriptModel != nil {
		if state.content, err = workflow.NewContentVideoWorkflow(deps); err != nil {
			return nil, err
		}
	} else {
		slog.Info("content video workflow disabled", "content_source", config.ContentSource.Endpoint != "", "script_model", deps.ScriptModel != nil)
	}
	return state, nil
}

// Close waits for the running jobs and releases every client.
func (s *StateManager) Close() {
	s.dispatcher.Close()
	if err := s.deps.Close(); err != nil {
		slog.Error("failed to close dependencies", "error", err)
	}
	s.cloud.Close()
}
