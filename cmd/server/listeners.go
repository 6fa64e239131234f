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

package main

import (
	"context"
	"log/slog"
)

// RenderTopic is the subscription key whose messages carry render requests
// as JSON.
const RenderTopic = "RenderTopic"

// SetupListeners attaches the scene video workflow to the render topic
// listener and starts it. Messages are acknowledged only after a successful
// render; failed ones are redelivered, then dead-lettered by the
// subscription.
func SetupListeners(ctx context.Context, state *StateManager) {
	if state.cloud == nil {
		return
	}
	listener, ok := state.cloud.PubSubListeners[RenderTopic]
	if !ok {
		slog.Info("no render topic subscription configured")
		return
	}
	listener.SetCommand(state.render)
	listener.Listen(ctx)
}
