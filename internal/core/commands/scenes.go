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
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"golang.org/x/sync/errgroup"
)

// sceneFunc processes the scene at position i.
type sceneFunc func(ctx context.Context, i int) error

// runScenes calls fn for positions 0..n-1 with at most limit calls in flight.
// Each call writes only its own slot of the caller's result slice, so results
// stay in scene order whatever order the workers finish in.
//
// Under the abort policy the first error cancels the remaining calls and is
// returned. Under the skip policy a *model.SceneError is collected and the
// other scenes carry on; any other error still aborts. A cancelled parent
// context always wins and is returned as is.
func runScenes(ctx context.Context, n, limit int, policy model.FailurePolicy, fn sceneFunc) ([]*model.SceneError, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	var skipped []*model.SceneError
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := fn(gctx, i)
			if err == nil {
				return nil
			}
			var se *model.SceneError
			if policy == model.FailurePolicySkip && ctx.Err() == nil && errors.As(err, &se) {
				mu.Lock()
				skipped = append(skipped, se)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	sort.Slice(skipped, func(a, b int) bool { return skipped[a].Index < skipped[b].Index })
	if ctxErr := ctx.Err(); ctxErr != nil {
		return skipped, ctxErr
	}
	return skipped, err
}

// compact drops the nil slots left by skipped scenes.
func compact[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}
