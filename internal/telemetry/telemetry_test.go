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

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		rec := map[string]interface{}{}
		require.NoError(t, dec.Decode(&rec))
		out = append(out, rec)
	}
	return out
}

func TestCloudLoggingFormat(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: replacer})
	logger := slog.New(handlerWithSpanContext(handler))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.WarnContext(ctx, "scene skipped", "scene", 2)
	logger.With("job", "j1").WithGroup("render").InfoContext(ctx, "merged", "level", "inner")

	records := decodeRecords(t, &buf)
	require.Len(t, records, 2)

	assert.Equal(t, "WARNING", records[0]["severity"])
	assert.Equal(t, "scene skipped", records[0]["message"])
	assert.Contains(t, records[0], "timestamp")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", records[0]["logging.googleapis.com/trace"])
	assert.Equal(t, "00f067aa0ba902b7", records[0]["logging.googleapis.com/spanId"])
	assert.Equal(t, true, records[0]["logging.googleapis.com/trace_sampled"])

	// Derived loggers stay correlated; grouped keys are left alone.
	assert.Equal(t, "INFO", records[1]["severity"])
	assert.Equal(t, "j1", records[1]["job"])
	group, ok := records[1]["render"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "inner", group["level"])
	assert.Contains(t, group, "logging.googleapis.com/trace")
}

func TestSetupLoggingWritesFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	defer log.SetOutput(os.Stderr)
	path := filepath.Join(t.TempDir(), "app.log")

	closeFn, err := SetupLogging(cloud.Telemetry{LogLevel: "warn", LogFile: path})
	require.NoError(t, err)
	slog.Info("dropped")
	slog.Error("kept", "code", 7)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records := decodeRecords(t, bytes.NewBuffer(data))
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0]["message"])
	assert.Equal(t, "ERROR", records[0]["severity"])

	_, err = SetupLogging(cloud.Telemetry{LogFile: filepath.Join(t.TempDir(), "missing", "app.log")})
	assert.Error(t, err)
}

func TestSetupOpenTelemetryDisabled(t *testing.T) {
	config := cloud.NewConfig()
	shutdown, err := SetupOpenTelemetry(context.Background(), config)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
