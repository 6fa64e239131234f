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

package cloud

import (
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/media"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/speech"
	"google.golang.org/genai"
)

var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

const (
	JobStoreMemory   = "memory"
	JobStoreSQLite   = "sqlite"
	JobStoreBigQuery = "bigquery"
)

// Render holds the pipeline settings: where files go, how much runs in
// parallel and how long external tools may take.
type Render struct {
	WorkDir              string         `toml:"work_dir"`                   // Per-job artifacts live in <work_dir>/<job id>.
	OutputDir            string         `toml:"output_dir"`                 // Finished videos, shared by all jobs.
	AssetWorkers         int            `toml:"asset_workers"`              // Concurrent scene asset syntheses.
	EncodeWorkers        int            `toml:"encode_workers"`             // Concurrent scene encodes.
	JobWorkers           int            `toml:"job_workers"`                // Concurrent jobs in the server.
	PaddingSeconds       float64        `toml:"padding_seconds"`            // Silence kept after the narration.
	DurationTolerance    float64        `toml:"duration_tolerance_seconds"` // Accepted drift of the merged video.
	FailurePolicy        string         `toml:"failure_policy"`             // "abort" or "skip".
	DefaultStyle         string         `toml:"default_style"`
	FFmpegPath           string         `toml:"ffmpeg_path"`
	FFprobePath          string         `toml:"ffprobe_path"`
	EncodeTimeoutSeconds int            `toml:"encode_timeout_seconds"`
	PublicURLPrefix      string         `toml:"public_url_prefix"` // Prefix of the URL reported for finished videos.
	Encoding             media.Encoding `toml:"encoding"`
}

func (r Render) EncodeTimeout() time.Duration {
	return time.Duration(r.EncodeTimeoutSeconds) * time.Second
}

// Speech lists the text to speech engines in fallback order.
type Speech struct {
	Language       string                `toml:"language"`
	Voice          string                `toml:"voice"`
	MinOutputBytes int64                 `toml:"min_output_bytes"`
	Engines        []speech.EngineConfig `toml:"engines"`
}

// Visual configures background acquisition.
type Visual struct {
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	UserAgent           string `toml:"user_agent"`
	GenerateImages      bool   `toml:"generate_images"` // Use ImageModel for non URL visual references.
	ImageModel          string `toml:"image_model"`
	RateLimit           int    `toml:"rate_limit"`
}

func (v Visual) FetchTimeout() time.Duration {
	return time.Duration(v.FetchTimeoutSeconds) * time.Second
}

type Storage struct {
	VideoBucket      string `toml:"video_bucket"`       // Upload finished videos here when set.
	VideoPrefix      string `toml:"video_prefix"`       // Object name prefix inside the bucket.
	SignedURLMinutes int    `toml:"signed_url_minutes"` // Lifetime of signed download URLs.
}

type JobStore struct {
	Kind       string `toml:"kind"` // memory, sqlite or bigquery.
	SQLitePath string `toml:"sqlite_path"`
	Dataset    string `toml:"dataset"`
	Table      string `toml:"table"`
}

type ContentSource struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Telemetry struct {
	Enabled  bool   `toml:"enabled"`   // Export traces and metrics to Google Cloud.
	LogLevel string `toml:"log_level"` // debug, info, warn or error.
	LogFile  string `toml:"log_file"`  // Also write JSON logs here when set.
}

type PromptTemplates struct {
	ScriptPrompt string `toml:"script"` // The template for generating a scene script from page content.
}

type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the Vertex AI LLM.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the LLM.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter for the LLM.
	TopP               float32 `toml:"top_p"`               // The top_p parameter for the LLM.
	TopK               float32 `toml:"top_k"`               // The top_k parameter for the LLM.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of tokens for the LLM output.
	OutputFormat       string  `toml:"output_format"`       // The desired output format for the LLM.
	RateLimit          int     `toml:"rate_limit"`          // The rate limit for the LLM in requests per second.
}

type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
		Port                      string `toml:"port"`                         // HTTP port of the API server.
	} `toml:"application"`
	Render             Render                       `toml:"render"`
	Styles             map[string]model.RenderStyle `toml:"styles"` // Render style presets keyed by name.
	Speech             Speech                       `toml:"speech"`
	Visual             Visual                       `toml:"visual"`
	Storage            Storage                      `toml:"storage"`
	JobStore           JobStore                     `toml:"job_store"`
	ContentSource      ContentSource                `toml:"content_source"`
	Telemetry          Telemetry                    `toml:"telemetry"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name (e.g., "RenderTopic").
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`        // Keyed by a logical name (e.g., "script-flash").
}

func NewConfig() *Config {
	return &Config{
		Styles:             make(map[string]model.RenderStyle),
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}

// UsesGenAI reports whether any configured component needs a GenAI client.
func (c *Config) UsesGenAI() bool {
	if len(c.AgentModels) > 0 || c.Visual.GenerateImages {
		return true
	}
	for _, e := range c.Speech.Engines {
		if e.Kind == speech.KindGemini {
			return true
		}
	}
	return false
}
