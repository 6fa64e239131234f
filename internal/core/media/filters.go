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

package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
)

// SubtitleLines splits narration text into subtitle rows on explicit line
// breaks. The row count is always the number of line breaks plus one; blank
// rows are kept so the layout matches the text.
func SubtitleLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// EscapeDrawText escapes a value for use as an unquoted drawtext option
// inside a filtergraph. Two levels apply: the option parser treats
// backslash, quote and colon as special, then the filtergraph parser treats
// backslash, quote, brackets, comma and semicolon as special.
func EscapeDrawText(s string) string {
	return escapeWith(escapeWith(s, `\':`), `\'[],;`)
}

func escapeWith(s, special string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SubtitleY returns the top edge of row i of n. Rows stack bottom-up: the
// last row sits BottomOffset pixels above the bottom of the frame and each
// earlier row is LineHeight pixels higher.
func SubtitleY(style *model.RenderStyle, i, n int) int {
	return style.Height - style.BottomOffset - (n-1-i)*style.LineHeight
}

// SubtitleFilters returns one drawtext filter per row. Rows are centred
// horizontally and drawn with a fill colour, an outline and a drop shadow.
// Blank rows are drawn as a single space so they still occupy their slot.
func SubtitleFilters(lines []string, style *model.RenderStyle) []string {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if line == "" {
			line = " "
		}
		opts := make([]string, 0, 12)
		if style.FontFile != "" {
			opts = append(opts, "fontfile="+EscapeDrawText(style.FontFile))
		}
		opts = append(opts,
			"text="+EscapeDrawText(line),
			"expansion=none",
			fmt.Sprintf("fontsize=%d", style.FontSize),
			"fontcolor="+style.FontColor,
			fmt.Sprintf("borderw=%d", style.BorderWidth),
			"bordercolor="+style.BorderColor,
			"shadowcolor="+style.ShadowColor,
			fmt.Sprintf("shadowx=%d", style.ShadowX),
			fmt.Sprintf("shadowy=%d", style.ShadowY),
			"x=(w-text_w)/2",
			fmt.Sprintf("y=%d", SubtitleY(style, i, len(lines))),
		)
		out = append(out, "drawtext="+strings.Join(opts, ":"))
	}
	return out
}

// FrameCount is the number of frames needed to cover seconds at fps.
func FrameCount(seconds float64, fps int) int {
	n := int(math.Ceil(seconds*float64(fps) - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// ZoomExpression returns the zoompan z expression for a scene. The result is
// a pure function of the style, the scene index and the frame count.
func ZoomExpression(style *model.RenderStyle, index, frames int) string {
	amp := formatFloat(style.MaxZoom - 1)
	maxZoom := formatFloat(style.MaxZoom)
	n := strconv.Itoa(frames)
	switch style.Effect {
	case model.EffectKenBurns:
		if index%2 == 0 {
			return fmt.Sprintf("min(1+%s*on/%s,%s)", amp, n, maxZoom)
		}
		return fmt.Sprintf("max(%s-%s*on/%s,1)", maxZoom, amp, n)
	case model.EffectNone:
		return "1"
	default:
		// One full cosine period over the clip: 1 at both ends, MaxZoom in the middle.
		return fmt.Sprintf("1+%s*0.5*(1-cos(2*PI*on/%s))", amp, n)
	}
}

// ZoomFilter returns the zoompan filter centred on the frame.
func ZoomFilter(style *model.RenderStyle, index int, seconds float64) string {
	frames := FrameCount(seconds, style.FrameRate)
	return fmt.Sprintf("zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:s=%dx%d:fps=%d",
		ZoomExpression(style, index, frames), style.Width, style.Height, style.FrameRate)
}

// VideoFilter builds the full -vf chain for a scene: fit the still to the
// frame, apply the motion, draw the subtitles and fix the pixel format.
func VideoFilter(spec *ComposeSpec, enc Encoding) string {
	s := spec.Style
	parts := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", s.Width, s.Height),
		fmt.Sprintf("crop=%d:%d", s.Width, s.Height),
		"setsar=1",
		ZoomFilter(s, spec.Index, spec.DurationSeconds),
	}
	parts = append(parts, SubtitleFilters(spec.Lines, s)...)
	parts = append(parts, "format="+enc.PixelFormat)
	return strings.Join(parts, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}

func formatSeconds(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
