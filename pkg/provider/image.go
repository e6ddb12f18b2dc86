package provider

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// aspectRatios are the sampler tags the provider accepts, with their
// numeric width/height ratios.
var aspectRatios = []struct {
	tag   string
	ratio float64
}{
	{"1:1", 1.0},
	{"16:9", 16.0 / 9.0},
	{"9:16", 9.0 / 16.0},
	{"4:3", 4.0 / 3.0},
	{"3:4", 3.0 / 4.0},
}

// AspectRatio maps target dimensions to the nearest supported sampler tag
// within 10% tolerance, falling back to an orientation default.
func AspectRatio(width, height int) string {
	ratio := float64(width) / float64(height)

	for _, ar := range aspectRatios {
		if math.Abs(ratio-ar.ratio) < 0.1 {
			return ar.tag
		}
	}
	switch {
	case ratio > 1.3:
		return "16:9"
	case ratio < 0.8:
		return "9:16"
	default:
		return "4:3"
	}
}

// normalizePNG decodes the provider image, resizes it to the exact target
// dimensions with Lanczos resampling when needed, and re-encodes as PNG.
func normalizePNG(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// syntheticPNG renders a flat placeholder image for dry-run mode, so
// downstream consumers still receive a decodable PNG of the right size.
func syntheticPNG(width, height int) ([]byte, error) {
	img := imaging.New(width, height, color.NRGBA{R: 26, G: 26, B: 26, A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
