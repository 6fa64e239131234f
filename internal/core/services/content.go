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

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ContentSource returns the readable content of a web page.
type ContentSource interface {
	Fetch(ctx context.Context, pageURL string) (*model.ContentPage, error)
}

// HTTPContentSource calls a crawler service: GET <endpoint>?url=<page> answers
// with {"title": ..., "content": ..., "images": [...]}.
type HTTPContentSource struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPContentSource(endpoint string, timeout time.Duration) *HTTPContentSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPContentSource{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (s *HTTPContentSource) Fetch(ctx context.Context, pageURL string) (*model.ContentPage, error) {
	if s.Endpoint == "" {
		return nil, errors.New("content source endpoint is not configured")
	}
	endpoint, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid content source endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", pageURL)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("content source returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	page := &model.ContentPage{}
	if err := json.NewDecoder(resp.Body).Decode(page); err != nil {
		return nil, fmt.Errorf("decoding content source response: %w", err)
	}
	if strings.TrimSpace(page.Content) == "" && strings.TrimSpace(page.Title) == "" {
		return nil, fmt.Errorf("content source returned no content for %s", pageURL)
	}
	page.URL = pageURL
	return page, nil
}
