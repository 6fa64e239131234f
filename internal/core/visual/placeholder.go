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

package visual

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/lucasb-eyer/go-colorful"
)

// silhouetteAlpha is how strongly the character shape darkens the gradient.
const silhouetteAlpha = 0.55

// Placeholder renders the fallback background for a scene: a vertical two
// colour gradient at the frame size, with a head and shoulders silhouette
// when the style is in character mode. The output depends only on the
// index and the style, so repeated calls return identical bytes.
func Placeholder(index int, style *model.RenderStyle) ([]byte, error) {
	pair := style.PaletteFor(index)
	top, err := colorful.Hex(pair.Top)
	if err != nil {
		return nil, fmt.Errorf("palette colour %q: %w", pair.Top, err)
	}
	bottom, err := colorful.Hex(pair.Bottom)
	if err != nil {
		return nil, fmt.Errorf("palette colour %q: %w", pair.Bottom, err)
	}

	w, h := style.Width, style.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		t := 0.0
		if h > 1 {
			t = float64(y) / float64(h-1)
		}
		r, g, b := top.BlendRgb(bottom, t).RGB255()
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = r, g, b, 0xff
		}
		if style.CharacterMode {
			if from, to, ok := silhouetteSpan(w, h, y); ok {
				darken(row[from*4 : to*4])
			}
		}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

// silhouetteSpan returns the [from, to) pixel range of row y covered by the
// head circle and the shoulders. Both shapes are centred, so a row is covered
// by one span as wide as the wider shape.
func silhouetteSpan(w, h, y int) (int, int, bool) {
	cx := float64(w) / 2
	fy := float64(y) + 0.5

	headR := float64(w) * 0.14
	headY := float64(h) * 0.40
	shoulderRX := float64(w) * 0.34
	shoulderRY := float64(h) * 0.14
	shoulderY := headY + headR + shoulderRY*0.85

	half := 0.0
	if dy := fy - headY; math.Abs(dy) < headR {
		half = math.Sqrt(headR*headR - dy*dy)
	}
	// Upper half of an ellipse, then straight down to the frame bottom.
	if dy := fy - shoulderY; dy >= 0 {
		half = math.Max(half, shoulderRX)
	} else if -dy < shoulderRY {
		half = math.Max(half, shoulderRX*math.Sqrt(1-(dy*dy)/(shoulderRY*shoulderRY)))
	}
	if half == 0 {
		return 0, 0, false
	}
	from := max(int(math.Round(cx-half)), 0)
	to := min(int(math.Round(cx+half)), w)
	return from, to, to > from
}

func darken(px []byte) {
	keep := 1 - silhouetteAlpha
	for i := 0; i+3 < len(px); i += 4 {
		px[i] = byte(float64(px[i]) * keep)
		px[i+1] = byte(float64(px[i+1]) * keep)
		px[i+2] = byte(float64(px[i+2]) * keep)
	}
}
