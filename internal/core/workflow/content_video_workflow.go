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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// ContentVideoWorkflow renders a video from a web page: the page is fetched,
// Gemini writes a scene script from it, and the script goes through the
// same render steps as a direct request.
type ContentVideoWorkflow struct {
	cor.BaseCommand
	chain  cor.Chain
	status cor.Command
}

// NewContentVideoWorkflow needs a content source, a script model and a
// script prompt template in addition to the render dependencies.
func NewContentVideoWorkflow(deps *Dependencies) (*ContentVideoWorkflow, error) {
	if deps.Content == nil {
		return nil, errors.New("content workflow requires a content source")
	}
	if deps.ScriptModel == nil {
		return nil, errors.New("content workflow requires a script model")
	}
	scriptTemplate, err := template.New("script-template").Parse(deps.Config.PromptTemplates.ScriptPrompt)
	if err != nil {
		return nil, fmt.Errorf("invalid script prompt template: %w", err)
	}
	defaults, err := requestDefaults(deps.Config)
	if err != nil {
		return nil, err
	}

	out := cor.NewBaseChain("content-video-workflow-chain")
	// Step 1: Fetch title, text and images of the page.
	out.AddCommand(commands.NewContentFetcher("fetch-page-content", deps.Content))
	// Step 2: Ask Gemini for a scene script; the output is a render request.
	out.AddCommand(commands.NewScriptGenerator("generate-scene-script", deps.ScriptModel, scriptTemplate))
	// Step 3: Render it.
	out.AddCommand(newRenderChain("content-video-render", deps, defaults))

	return &ContentVideoWorkflow{
		BaseCommand: *cor.NewBaseCommand("content-video-workflow"),
		chain:       out,
		status:      commands.NewJobStatusWriter("write-job-status", deps.Jobs),
	}, nil
}

func (w *ContentVideoWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	w.status.Execute(context)
	if context.HasErrors() {
		w.GetErrorCounter().Add(context.GetContext(), 1)
	} else {
		w.GetSuccessCounter().Add(context.GetContext(), 1)
	}
}

// Generate runs the workflow for req and returns the final video.
func (w *ContentVideoWorkflow) Generate(ctx context.Context, req *model.ContentRequest) (*model.FinalVideo, error) {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, req)
	if req.JobID != "" {
		chCtx.Add(commands.ParamJobID, req.JobID)
	}
	w.Execute(chCtx)
	return finalVideo(chCtx)
}
