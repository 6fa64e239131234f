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
// Responsibility (COR) pattern's Command interface for the scene video
// pipeline. This file defines the well-known context keys the commands use
// to share state beyond the CtxIn/CtxOut piping of the chain.
package commands

import (
	"sort"
	"sync"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

const (
	ParamJobID          = "__JOB_ID__"
	ParamRenderRequest  = "__RENDER_REQUEST__"
	ParamRenderStyle    = "__RENDER_STYLE__"
	ParamWorkDir        = "__WORK_DIR__"
	ParamAssets         = "__ASSETS__"
	ParamClips          = "__CLIPS__"
	ParamFinalVideo     = "__FINAL_VIDEO__"
	ParamSceneErrors    = "__SCENE_ERRORS__"
	ParamContentRequest = "__CONTENT_REQUEST__"
	ParamContentPage    = "__CONTENT_PAGE__"
)

// sceneErrorsMu guards ParamSceneErrors across commands; the value is a slice
// and the context only serialises the map access.
var sceneErrorsMu sync.Mutex

// RecordSceneErrors appends skipped scene failures to the context.
func RecordSceneErrors(context cor.Context, errs ...*model.SceneError) {
	if len(errs) == 0 {
		return
	}
	sceneErrorsMu.Lock()
	defer sceneErrorsMu.Unlock()
	current, _ := context.Get(ParamSceneErrors).([]*model.SceneError)
	context.Add(ParamSceneErrors, append(append([]*model.SceneError{}, current...), errs...))
}

// SceneErrors returns the skipped scene failures recorded so far.
func SceneErrors(context cor.Context) []*model.SceneError {
	errs, _ := context.Get(ParamSceneErrors).([]*model.SceneError)
	return errs
}

// FailedScenes returns the sorted, de-duplicated indexes of every scene that
// failed, whether it was skipped or aborted the job.
func FailedScenes(context cor.Context) []int {
	seen := map[int]bool{}
	for _, e := range SceneErrors(context) {
		seen[e.Index] = true
	}
	for _, err := range context.GetErrors() {
		for _, se := range sceneErrorsIn(err) {
			seen[se.Index] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// sceneErrorsIn walks an error tree, including errors.Join results.
func sceneErrorsIn(err error) []*model.SceneError {
	switch e := err.(type) {
	case nil:
		return nil
	case *model.SceneError:
		return []*model.SceneError{e}
	case interface{ Unwrap() []error }:
		var out []*model.SceneError
		for _, inner := range e.Unwrap() {
			out = append(out, sceneErrorsIn(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		return sceneErrorsIn(e.Unwrap())
	default:
		return nil
	}
}
