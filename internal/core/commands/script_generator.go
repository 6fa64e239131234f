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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// ScriptGenerator, which asks a generative model to turn a fetched web page
// into a scene script.
//
// Logic Flow:
//  1. It receives the `model.ContentPage` produced by the ContentFetcher and
//     the originating content request.
//  2. It builds the prompt from a Go template. The page title, its content
//     (truncated), the candidate image URLs, the scene limit, the narration
//     language and a complete example script (few-shot prompting) are
//     injected.
//  3. It sends the prompt to the quota aware model. Retries and token
//     counters are handled by `cloud.GenerateMultiModalResponse`.
//  4. The JSON answer is parsed into a `model.GeneratedScript`. Scenes
//     without a visual take the page images in turn, and the script is cut
//     to the scene limit.
//  5. A `model.RenderRequest` carrying the job id, language, voice, style and
//     failure policy of the content request becomes the command's output,
//     ready for the render workflow.
package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"google.golang.org/genai"
)

const (
	// DefaultMaxScenes bounds a generated script when the request sets no limit.
	DefaultMaxScenes = 6
	// MaxPromptContentRunes truncates page content before prompting.
	MaxPromptContentRunes = 12000
)

// ScriptGenerator turns a content page into a render request with Gemini.
type ScriptGenerator struct {
	cor.BaseCommand
	generativeAIModel        *cloud.QuotaAwareGenerativeAIModel
	template                 *template.Template
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
	geminiRetryCounter       metric.Int64Counter
}

func NewScriptGenerator(name string, generativeAIModel *cloud.QuotaAwareGenerativeAIModel, template *template.Template) *ScriptGenerator {
	out := &ScriptGenerator{
		BaseCommand:       *cor.NewBaseCommand(name),
		generativeAIModel: generativeAIModel,
		template:          template,
	}
	out.BaseCommand.InputParamName = ParamContentPage
	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	return out
}

// GenerateParams creates the values injected into the prompt template.
func GenerateParams(page *model.ContentPage, req *model.ContentRequest) map[string]interface{} {
	params := make(map[string]interface{})
	params["TITLE"] = page.Title
	params["CONTENT"] = truncateRunes(page.Content, MaxPromptContentRunes)
	params["IMAGES"] = strings.Join(page.Images, "\n")
	params["MAX_SCENES"] = maxScenes(req)
	params["LANGUAGE"] = req.Language
	exampleScript, _ := json.Marshal(model.GetExampleScript())
	params["EXAMPLE_JSON"] = string(exampleScript)
	return params
}

func (t *ScriptGenerator) Execute(context cor.Context) {
	page, ok := context.Get(t.GetInputParam()).(*model.ContentPage)
	if !ok {
		t.Fail(context, fmt.Errorf("expected *model.ContentPage, got %T", context.Get(t.GetInputParam())))
		return
	}
	req, ok := context.Get(ParamContentRequest).(*model.ContentRequest)
	if !ok {
		t.Fail(context, errors.New("missing content request"))
		return
	}

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, GenerateParams(page, req)); err != nil {
		t.Fail(context, fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}
	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: buffer.String()}}, Role: genai.RoleUser},
	}

	out, err := cloud.GenerateMultiModalResponse(context.GetContext(), t.geminiInputTokenCounter, t.geminiOutputTokenCounter, t.geminiRetryCounter, 0, t.generativeAIModel, contents)
	if err != nil {
		t.Fail(context, fmt.Errorf("gemini request failed: %w", err))
		return
	}

	script, err := ParseScript(out)
	if err != nil {
		t.Fail(context, err)
		return
	}
	context.Add(t.GetOutputParam(), BuildRenderRequest(script, req, page))
	t.Succeed(context)
}

// ParseScript decodes a model answer, tolerating a markdown code fence.
func ParseScript(raw string) (*model.GeneratedScript, error) {
	script := &model.GeneratedScript{}
	if err := json.Unmarshal([]byte(cloud.StripCodeFence(raw)), script); err != nil {
		return nil, fmt.Errorf("failed to parse generated script: %w", err)
	}
	kept := script.Scenes[:0]
	for _, s := range script.Scenes {
		if s != nil && strings.TrimSpace(s.Text) != "" {
			kept = append(kept, s)
		}
	}
	script.Scenes = kept
	if len(script.Scenes) == 0 {
		return nil, errors.New("generated script has no scenes")
	}
	return script, nil
}

// BuildRenderRequest turns a script into a render request for req.
func BuildRenderRequest(script *model.GeneratedScript, req *model.ContentRequest, page *model.ContentPage) *model.RenderRequest {
	scenes := script.Scenes
	if limit := maxScenes(req); len(scenes) > limit {
		scenes = scenes[:limit]
	}
	next := 0
	for _, s := range scenes {
		if s.VisualRef == "" && len(page.Images) > 0 {
			s.VisualRef = page.Images[next%len(page.Images)]
			next++
		}
	}
	return &model.RenderRequest{
		JobID:         req.JobID,
		Scenes:        scenes,
		Language:      req.Language,
		Voice:         req.Voice,
		Style:         req.Style,
		FailurePolicy: req.FailurePolicy,
	}
}

func maxScenes(req *model.ContentRequest) int {
	if req.MaxScenes > 0 {
		return req.MaxScenes
	}
	return DefaultMaxScenes
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
