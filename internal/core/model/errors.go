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
	"strings"
)

// ErrInvalidRequest marks requests that can never be rendered, such as
// malformed JSON or a request that fails validation. Retrying them is
// pointless.
var ErrInvalidRequest = errors.New("invalid render request")

// Stage names a step of the per-scene pipeline.
type Stage string

const (
	StageVisual  Stage = "visual"
	StageSpeech  Stage = "speech"
	StageProbe   Stage = "probe"
	StageCompose Stage = "compose"
	StageMerge   Stage = "merge"
)

// SceneError is a scene-fatal failure. It names the scene and the stage so
// the caller can tell which scene to look at.
type SceneError struct {
	Index int
	Stage Stage
	Err   error
}

func NewSceneError(index int, stage Stage, err error) *SceneError {
	return &SceneError{Index: index, Stage: stage, Err: err}
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %d failed at %s stage: %v", e.Index, e.Stage, e.Err)
}

func (e *SceneError) Unwrap() error {
	return e.Err
}

// MergeError is a failed concatenation. Succeeded holds every clip that was
// composed, in order, so the merge can be retried without regenerating them.
type MergeError struct {
	Succeeded []*SceneClip
	Err       error
}

func (e *MergeError) Error() string {
	idx := make([]string, 0, len(e.Succeeded))
	for _, c := range e.Succeeded {
		idx = append(idx, fmt.Sprint(c.Index))
	}
	return fmt.Sprintf("merge failed, composed scenes [%s]: %v", strings.Join(idx, ","), e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// SucceededIndexes returns the scene indexes that were composed.
func (e *MergeError) SucceededIndexes() []int {
	return ClipIndexes(e.Succeeded)
}
