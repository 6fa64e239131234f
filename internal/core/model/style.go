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

// EffectKind selects the motion applied to a scene background.
type EffectKind string

const (
	// EffectSinusoidal oscillates the zoom between 1.0 and MaxZoom once over
	// the clip.
	EffectSinusoidal EffectKind = "sinusoidal"
	// EffectKenBurns zooms monotonically: in on even scenes, out on odd ones.
	EffectKenBurns EffectKind = "kenburns"
	// EffectNone keeps the background still.
	EffectNone EffectKind = "none"
)

// ColorPair is the top and bottom colour of a placeholder gradient.
type ColorPair struct {
	Top    string `toml:"top" json:"top"`
	Bottom string `toml:"bottom" json:"bottom"`
}

// RenderStyle holds the visual parameters of a video. Several presets are
// loaded from configuration; a request picks one by name.
type RenderStyle struct {
	Width         int         `toml:"width" json:"width"`
	Height        int         `toml:"height" json:"height"`
	FrameRate     int         `toml:"frame_rate" json:"frame_rate"`
	Palette       []ColorPair `toml:"palette" json:"palette"`
	CharacterMode bool        `toml:"character_mode" json:"character_mode"`

	Effect  EffectKind `toml:"effect" json:"effect"`
	MaxZoom float64    `toml:"max_zoom" json:"max_zoom"`

	FontFile     string `toml:"font_file" json:"font_file,omitempty"`
	FontSize     int    `toml:"font_size" json:"font_size"`
	FontColor    string `toml:"font_color" json:"font_color"`
	BorderColor  string `toml:"border_color" json:"border_color"`
	BorderWidth  int    `toml:"border_width" json:"border_width"`
	ShadowColor  string `toml:"shadow_color" json:"shadow_color"`
	ShadowX      int    `toml:"shadow_x" json:"shadow_x"`
	ShadowY      int    `toml:"shadow_y" json:"shadow_y"`
	LineHeight   int    `toml:"line_height" json:"line_height"`
	BottomOffset int    `toml:"bottom_offset" json:"bottom_offset"`
}

// DefaultPalette is used when a style does not define its own.
var DefaultPalette = []ColorPair{
	{Top: "#1e3c72", Bottom: "#2a5298"},
	{Top: "#42275a", Bottom: "#734b6d"},
	{Top: "#134e5e", Bottom: "#71b280"},
	{Top: "#833ab4", Bottom: "#fd1d1d"},
	{Top: "#0f2027", Bottom: "#2c5364"},
}

// DefaultRenderStyle is the portrait 1080x1920, 25 fps style with the
// sinusoidal zoom.
func DefaultRenderStyle() *RenderStyle {
	return &RenderStyle{
		Width:        1080,
		Height:       1920,
		FrameRate:    25,
		Palette:      DefaultPalette,
		Effect:       EffectSinusoidal,
		MaxZoom:      1.15,
		FontSize:     64,
		FontColor:    "white",
		BorderColor:  "black",
		BorderWidth:  4,
		ShadowColor:  "black@0.6",
		ShadowX:      3,
		ShadowY:      3,
		LineHeight:   82,
		BottomOffset: 420,
	}
}

// WithDefaults returns a copy of s where every unset field takes the value
// from DefaultRenderStyle.
func (s RenderStyle) WithDefaults() *RenderStyle {
	d := DefaultRenderStyle()
	if s.Width <= 0 {
		s.Width = d.Width
	}
	if s.Height <= 0 {
		s.Height = d.Height
	}
	if s.FrameRate <= 0 {
		s.FrameRate = d.FrameRate
	}
	if len(s.Palette) == 0 {
		s.Palette = d.Palette
	}
	if s.Effect == "" {
		s.Effect = d.Effect
	}
	if s.MaxZoom < 1 {
		s.MaxZoom = d.MaxZoom
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.FontColor == "" {
		s.FontColor = d.FontColor
	}
	if s.BorderColor == "" {
		s.BorderColor = d.BorderColor
	}
	if s.BorderWidth <= 0 {
		s.BorderWidth = d.BorderWidth
	}
	if s.ShadowColor == "" {
		s.ShadowColor = d.ShadowColor
	}
	if s.ShadowX == 0 && s.ShadowY == 0 {
		s.ShadowX, s.ShadowY = d.ShadowX, d.ShadowY
	}
	if s.LineHeight <= 0 {
		s.LineHeight = d.LineHeight
	}
	if s.BottomOffset <= 0 {
		s.BottomOffset = d.BottomOffset
	}
	return &s
}

// PaletteFor picks the gradient for a scene: index modulo the palette size.
// Equal indexes modulo the palette size always get the same pair.
func (s *RenderStyle) PaletteFor(index int) ColorPair {
	palette := s.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	i := index % len(palette)
	if i < 0 {
		i += len(palette)
	}
	return palette[i]
}

// Style preset names that exist without configuration.
const (
	StyleDefault   = "default"
	StyleKenBurns  = "kenburns"
	StyleCharacter = "character"
)

// BuiltinStyles returns the presets available without configuration.
// Configured styles with the same name replace them.
func BuiltinStyles() map[string]RenderStyle {
	return map[string]RenderStyle{
		StyleDefault:   *DefaultRenderStyle(),
		StyleKenBurns:  {Effect: EffectKenBurns, MaxZoom: 1.2},
		StyleCharacter: {CharacterMode: true, Effect: EffectNone},
	}
}
