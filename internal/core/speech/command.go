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

package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// CommandEngine runs a command line TTS tool such as edge-tts, gtts-cli or
// espeak-ng. Args is a template; the placeholders {text}, {lang}, {voice}
// and {out} are substituted inside each argument. Arguments are passed
// directly to the process, never through a shell.
type CommandEngine struct {
	name    string
	path    string
	args    []string
	ext     string
	timeout time.Duration
	limiter *rate.Limiter
}

func NewCommandEngine(name, path string, args []string, ext string, timeout time.Duration, limiter *rate.Limiter) *CommandEngine {
	if ext == "" {
		ext = "mp3"
	}
	if name == "" {
		name = path
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &CommandEngine{name: name, path: path, args: args, ext: ext, timeout: timeout, limiter: limiter}
}

func (c *CommandEngine) Name() string      { return c.name }
func (c *CommandEngine) Extension() string { return c.ext }

// Args expands the argument template for a request.
func (c *CommandEngine) Args(req *Request) []string {
	r := strings.NewReplacer(
		"{text}", req.Text,
		"{lang}", req.Language,
		"{voice}", req.Voice,
		"{out}", req.OutputPath,
	)
	out := make([]string, len(c.args))
	for i, a := range c.args {
		out[i] = r.Replace(a)
	}
	return out
}

func (c *CommandEngine) Synthesize(ctx context.Context, req *Request) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: waiting for rate limit: %w", c.name, err)
	}
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, c.Args(req)...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	slog.DebugContext(ctx, "speech command finished", "engine", c.name, "elapsed", time.Since(start), "error", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return fmt.Errorf("%s failed: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
