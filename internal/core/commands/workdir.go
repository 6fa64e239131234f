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
	"fmt"
	"os"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// WorkDirPreparer creates the per-job directory tree and checks the output
// directory is writable before any expensive work starts. Input is the
// render request; output is the *model.WorkDir.
type WorkDirPreparer struct {
	cor.BaseCommand
	base      string
	outputDir string
}

func NewWorkDirPreparer(name, base, outputDir string) *WorkDirPreparer {
	return &WorkDirPreparer{BaseCommand: *cor.NewBaseCommand(name), base: base, outputDir: outputDir}
}

func (w *WorkDirPreparer) Execute(context cor.Context) {
	req, ok := context.Get(w.GetInputParam()).(*model.RenderRequest)
	if !ok {
		w.Fail(context, fmt.Errorf("expected *model.RenderRequest, got %T", context.Get(w.GetInputParam())))
		return
	}

	if err := model.ValidateJobID(req.JobID); err != nil {
		w.Fail(context, err)
		return
	}
	wd := model.NewWorkDir(w.base, req.JobID, w.outputDir)
	for _, dir := range wd.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.Fail(context, fmt.Errorf("failed to create %s: %w", dir, err))
			return
		}
	}
	if err := probeWritable(wd.OutputDir); err != nil {
		w.Fail(context, err)
		return
	}

	context.Add(ParamWorkDir, wd)
	context.Add(w.GetOutputParam(), wd)
	w.Succeed(context)
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
