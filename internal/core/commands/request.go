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
// RenderRequestReader, the first command of the render workflow. It turns
// whatever arrived on the chain (a JSON message from Pub/Sub or HTTP, or an
// already decoded request) into a validated render request.
//
// Logic Flow:
//  1. The input is decoded into a `model.RenderRequest`. Strings and byte
//     slices are parsed as JSON; a request struct is copied.
//  2. The job id is taken from the request, else from the `ParamJobID`
//     context key set by the caller, else a new one is generated. It is
//     published to the context before validation so a rejected request
//     still gets a terminal job status.
//  3. Unset language, voice, style and failure policy take the configured
//     defaults.
//  4. The request is validated and its style name resolved to a complete
//     `model.RenderStyle`.
//  5. The request and style are stored under their well-known keys and the
//     request becomes the command's output.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// RequestDefaults fills the optional fields of incoming requests.
type RequestDefaults struct {
	Language      string
	Voice         string
	Style         string
	FailurePolicy model.FailurePolicy
}

// Apply sets every empty field of req from the defaults.
func (d RequestDefaults) Apply(req *model.RenderRequest) {
	if req.Language == "" {
		req.Language = d.Language
	}
	if req.Voice == "" {
		req.Voice = d.Voice
	}
	if req.Style == "" {
		req.Style = d.Style
	}
	if req.FailurePolicy == "" {
		req.FailurePolicy = d.FailurePolicy
	}
}

// RenderRequestReader decodes, completes and validates a render request.
type RenderRequestReader struct {
	cor.BaseCommand
	defaults RequestDefaults
	styles   map[string]model.RenderStyle
}

// NewRenderRequestReader creates the reader. styles holds the configured
// presets; the built-in ones are always available underneath.
func NewRenderRequestReader(name string, defaults RequestDefaults, styles map[string]model.RenderStyle) *RenderRequestReader {
	merged := model.BuiltinStyles()
	for k, v := range styles {
		merged[k] = v
	}
	return &RenderRequestReader{
		BaseCommand: *cor.NewBaseCommand(name),
		defaults:    defaults,
		styles:      merged,
	}
}

func (r *RenderRequestReader) Execute(context cor.Context) {
	req, err := DecodeRenderRequest(context.Get(r.GetInputParam()))
	if err != nil {
		r.Fail(context, fmt.Errorf("%w: %w", model.ErrInvalidRequest, err))
		return
	}

	if req.JobID == "" {
		if id, ok := context.Get(ParamJobID).(string); ok && id != "" {
			req.JobID = id
		} else {
			req.JobID = model.NewJobID()
		}
	}
	context.Add(ParamJobID, req.JobID)

	r.defaults.Apply(req)
	if err := req.Validate(); err != nil {
		r.Fail(context, fmt.Errorf("%w: %w", model.ErrInvalidRequest, err))
		return
	}
	style, err := ResolveStyle(r.styles, req.Style)
	if err != nil {
		r.Fail(context, fmt.Errorf("%w: %w", model.ErrInvalidRequest, err))
		return
	}

	context.Add(ParamRenderRequest, req)
	context.Add(ParamRenderStyle, style)
	context.Add(r.GetOutputParam(), req)
	r.Succeed(context)
}

// DecodeRenderRequest accepts a JSON string, JSON bytes or a request value.
// A request value is copied so the caller's struct is never modified.
func DecodeRenderRequest(in interface{}) (*model.RenderRequest, error) {
	var raw []byte
	switch v := in.(type) {
	case *model.RenderRequest:
		if v == nil {
			return nil, fmt.Errorf("render request is nil")
		}
		out := *v
		return &out, nil
	case model.RenderRequest:
		return &v, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("unsupported render request input %T", in)
	}
	req := &model.RenderRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("failed to decode render request: %w", err)
	}
	return req, nil
}

// ResolveStyle returns the complete preset called name. Empty means the
// default preset.
func ResolveStyle(styles map[string]model.RenderStyle, name string) (*model.RenderStyle, error) {
	if name == "" {
		name = model.StyleDefault
	}
	s, ok := styles[name]
	if !ok {
		return nil, fmt.Errorf("unknown render style %q", name)
	}
	return s.WithDefaults(), nil
}
