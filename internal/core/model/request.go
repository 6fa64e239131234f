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

package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// FailurePolicy decides what happens to a job when one scene fails.
type FailurePolicy string

const (
	// FailurePolicyAbort fails the whole job on the first scene-fatal error.
	FailurePolicyAbort FailurePolicy = "abort"
	// FailurePolicySkip drops failed scenes and merges the rest. The job still
	// fails when no scene survives.
	FailurePolicySkip FailurePolicy = "skip"
)

// ParseFailurePolicy maps a configuration string to a policy. Empty means abort.
func ParseFailurePolicy(in string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(in))) {
	case "", FailurePolicyAbort:
		return FailurePolicyAbort, nil
	case FailurePolicySkip:
		return FailurePolicySkip, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", in)
	}
}

// jobIDPattern keeps job ids usable as a single path element.
var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateJobID rejects ids that are not a plain token of letters, digits,
// '-' or '_'. Job ids name the work directory and the default output file.
func ValidateJobID(id string) error {
	if !jobIDPattern.MatchString(id) {
		return fmt.Errorf("invalid job id %q: use up to 64 letters, digits, '-' or '_'", id)
	}
	return nil
}

// RenderRequest asks for one video built from an ordered list of scenes.
type RenderRequest struct {
	JobID         string        `json:"job_id,omitempty"`
	Scenes        []*Scene      `json:"scenes"`
	Language      string        `json:"language,omitempty"`
	Voice         string        `json:"voice,omitempty"`
	Style         string        `json:"style,omitempty"`
	OutputName    string        `json:"output_name,omitempty"`
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty"`
	StreamCopy    bool          `json:"stream_copy,omitempty"`
}

// Validate checks the request is renderable. It does not apply defaults.
// An empty JobID is accepted; one is assigned before rendering.
func (r *RenderRequest) Validate() error {
	if r.JobID != "" {
		if err := ValidateJobID(r.JobID); err != nil {
			return err
		}
	}
	if len(r.Scenes) == 0 {
		return errors.New("render request has no scenes")
	}
	for i, s := range r.Scenes {
		if s == nil {
			return fmt.Errorf("scene %d is empty", i+1)
		}
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("scene %d has no narration text", i+1)
		}
		if s.TargetDurationSeconds < 0 {
			return fmt.Errorf("scene %d has a negative target duration", i+1)
		}
	}
	if _, err := ParseFailurePolicy(string(r.FailurePolicy)); err != nil {
		return err
	}
	if r.OutputName != "" && (filepath.Base(r.OutputName) != r.OutputName || strings.HasPrefix(r.OutputName, ".")) {
		return fmt.Errorf("output name %q must be a plain file name", r.OutputName)
	}
	return nil
}

// OutputFileName is the name of the final video inside the output directory.
func (r *RenderRequest) OutputFileName() string {
	if r.OutputName != "" {
		if filepath.Ext(r.OutputName) == "" {
			return r.OutputName + ".mp4"
		}
		return r.OutputName
	}
	return fmt.Sprintf("video_%s.mp4", r.JobID)
}

// ContentRequest asks for a video whose script is generated from a web page.
type ContentRequest struct {
	JobID         string        `json:"job_id,omitempty"`
	URL           string        `json:"url"`
	Language      string        `json:"language,omitempty"`
	Voice         string        `json:"voice,omitempty"`
	Style         string        `json:"style,omitempty"`
	MaxScenes     int           `json:"max_scenes,omitempty"`
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty"`
}

// ContentPage is what the content source returns for a URL.
type ContentPage struct {
	URL     string   `json:"url,omitempty"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// WorkDir is the per-job directory layout. Every scene artifact path is
// qualified by the scene index so no two scenes share a file.
type WorkDir struct {
	Root      string `json:"root"`
	Images    string `json:"images"`
	Audio     string `json:"audio"`
	Clips     string `json:"clips"`
	OutputDir string `json:"output_dir"`
}

// NewWorkDir lays out the job directory under base and the shared output dir.
func NewWorkDir(base, jobID, outputDir string) *WorkDir {
	root := filepath.Join(base, jobID)
	return &WorkDir{
		Root:      root,
		Images:    filepath.Join(root, "images"),
		Audio:     filepath.Join(root, "audio"),
		Clips:     filepath.Join(root, "clips"),
		OutputDir: outputDir,
	}
}

// Dirs returns every directory that must exist before rendering.
func (w *WorkDir) Dirs() []string {
	return []string{w.Root, w.Images, w.Audio, w.Clips, w.OutputDir}
}

func (w *WorkDir) ImageBase(index int) string {
	return filepath.Join(w.Images, sceneName(index))
}

func (w *WorkDir) AudioBase(index int) string {
	return filepath.Join(w.Audio, sceneName(index))
}

func (w *WorkDir) ClipPath(index int) string {
	return filepath.Join(w.Clips, sceneName(index)+".mp4")
}

func (w *WorkDir) ManifestPath() string {
	return filepath.Join(w.Root, "concat.txt")
}

func (w *WorkDir) OutputPath(name string) string {
	return filepath.Join(w.OutputDir, name)
}

func sceneName(index int) string {
	return fmt.Sprintf("scene_%03d", index)
}
