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

// GeneratedScript is the JSON shape the script generation model must answer
// with.
type GeneratedScript struct {
	Title  string   `json:"title"`
	Scenes []*Scene `json:"scenes"`
}

// GetExampleScript returns a complete script used as the few-shot example in
// the script generation prompt. A concrete example keeps the model's JSON in
// the shape GeneratedScript expects.
func GetExampleScript() *GeneratedScript {
	return &GeneratedScript{
		Title: "Three facts about octopuses",
		Scenes: []*Scene{
			{
				Text:                  "Octopuses have\nthree hearts.",
				VisualRef:             "https://upload.wikimedia.org/wikipedia/commons/5/57/Octopus2.jpg",
				TargetDurationSeconds: 5,
			},
			{
				Text:                  "Their blood is blue,\nthanks to copper.",
				VisualRef:             "close-up of a blue-tinted octopus tentacle, cinematic lighting",
				TargetDurationSeconds: 5,
			},
			{
				Text:                  "And each arm\ncan taste what it touches.",
				TargetDurationSeconds: 6,
			},
		},
	}
}

// GetExampleRequest returns the two-scene request used by the local render
// command and tests.
func GetExampleRequest() *RenderRequest {
	return &RenderRequest{
		Scenes: []*Scene{
			{Text: "Hello\nWorld", TargetDurationSeconds: 6},
			{Text: "Bye", TargetDurationSeconds: 6},
		},
		Language: "en",
	}
}
