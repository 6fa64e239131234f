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

// Command render builds one video in the foreground and prints the result as
// JSON. Without arguments it renders the bundled two-scene example.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
	"github.com/jaycherian/gcp-go-scene-video/internal/telemetry"
)

// scriptModelName must match the agent model configured for the server.
const scriptModelName = "script-flash"

type options struct {
	requestFile string
	contentURL  string
	jobID       string
	style       string
	policy      string
	useCloud    bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.StringVar(&opts.requestFile, "request", "", "path to a render request JSON file")
	fs.StringVar(&opts.contentURL, "url", "", "generate the script from this page instead of a request file")
	fs.StringVar(&opts.jobID, "job", "", "job id, generated when empty")
	fs.StringVar(&opts.style, "style", "", "render style name")
	fs.StringVar(&opts.policy, "policy", "", "scene failure policy: abort or skip")
	fs.BoolVar(&opts.useCloud, "cloud", false, "create the Google Cloud clients named in the configuration")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.requestFile != "" && opts.contentURL != "" {
		return nil, fmt.Errorf("-request and -url are mutually exclusive")
	}
	if opts.contentURL != "" {
		opts.useCloud = true
	}
	return opts, nil
}

// loadRequest reads the request file, or the bundled example when path is
// empty, and applies the command line overrides.
func loadRequest(path string, opts *options) (*model.RenderRequest, error) {
	req := model.GetExampleRequest()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		req = &model.RenderRequest{}
		if err := json.Unmarshal(raw, req); err != nil {
			return nil, fmt.Errorf("invalid request %s: %w", path, err)
		}
	}
	if opts.jobID != "" {
		req.JobID = opts.jobID
	}
	if opts.style != "" {
		req.Style = opts.style
	}
	if opts.policy != "" {
		req.FailurePolicy = model.FailurePolicy(opts.policy)
	}
	if req.JobID == "" {
		req.JobID = model.NewJobID()
	}
	return req, req.Validate()
}

func run(ctx context.Context, config *cloud.Config, opts *options) (*model.FinalVideo, error) {
	var clients *cloud.ServiceClients
	if opts.useCloud {
		var err error
		if clients, err = cloud.NewCloudServiceClients(ctx, config); err != nil {
			return nil, err
		}
		defer clients.Close()
	}
	deps, err := workflow.NewDependencies(ctx, config, clients, scriptModelName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = deps.Close() }()

	if opts.contentURL != "" {
		w, err := workflow.NewContentVideoWorkflow(deps)
		if err != nil {
			return nil, err
		}
		return w.Generate(ctx, &model.ContentRequest{
			JobID:         opts.jobID,
			URL:           opts.contentURL,
			Style:         opts.style,
			FailurePolicy: model.FailurePolicy(opts.policy),
		})
	}

	req, err := loadRequest(opts.requestFile, opts)
	if err != nil {
		return nil, err
	}
	w, err := workflow.NewSceneVideoWorkflow(deps)
	if err != nil {
		return nil, err
	}
	return w.Render(ctx, req)
}

func loadConfig() (*cloud.Config, error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return nil, err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		if err := os.Setenv(cloud.EnvConfigRuntime, "local"); err != nil {
			return nil, err
		}
	}
	config := cloud.NewConfig()
	return config, cloud.LoadConfig(config)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	config, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	closeLogs, err := telemetry.SetupLogging(config.Telemetry)
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	video, err := run(ctx, config, opts)
	if err != nil {
		slog.Error("render failed", "error", err)
		stop()
		_ = closeLogs()
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(video); err != nil {
		log.Fatal(err)
	}
}
