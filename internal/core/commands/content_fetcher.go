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

package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
)

// ContentFetcher starts the content workflow: it decodes a content request
// and fetches the page it points to. The job id is published before the
// fetch so a failed crawl still gets a terminal status.
type ContentFetcher struct {
	cor.BaseCommand
	source services.ContentSource
}

func NewContentFetcher(name string, source services.ContentSource) *ContentFetcher {
	return &ContentFetcher{BaseCommand: *cor.NewBaseCommand(name), source: source}
}

func (c *ContentFetcher) Execute(context cor.Context) {
	req, err := decodeContentRequest(context.Get(c.GetInputParam()))
	if err != nil {
		c.Fail(context, err)
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
	if req.URL == "" {
		c.Fail(context, errors.New("content request has no url"))
		return
	}

	page, err := c.source.Fetch(context.GetContext(), req.URL)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to fetch %s: %w", req.URL, err))
		return
	}
	context.Add(ParamContentRequest, req)
	context.Add(ParamContentPage, page)
	context.Add(c.GetOutputParam(), page)
	c.Succeed(context)
}

func decodeContentRequest(in interface{}) (*model.ContentRequest, error) {
	var raw []byte
	switch v := in.(type) {
	case *model.ContentRequest:
		if v == nil {
			return nil, errors.New("content request is nil")
		}
		out := *v
		return &out, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("unsupported content request input %T", in)
	}
	req := &model.ContentRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("failed to decode content request: %w", err)
	}
	return req, nil
}
