/**
 * Image Buffer Ops - pixel transforms for scale display photos
 *
 * Every transform is pure: it never mutates its input and always returns a
 * freshly allocated *image.NRGBA anchored at (0,0). Images below MinDimension
 * short-circuit to a copy of the input so callers can branch freely without
 * sharing buffers.
 */

package imageops

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	// MinDimension is the smallest width/height any transform operates on.
	MinDimension = 3

	// DisplayContrastFactor is the mid-gray stretch used for LED/LCD segments.
	DisplayContrastFactor = 2.0
)

// Applicable reports whether img is large enough for pixel transforms
func Applicable(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	return b.Dx() >= MinDimension && b.Dy() >= MinDimension
}

// Valid reports whether img can be handed to the recognition engine
func Valid(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	return b.Dx() >= 1 && b.Dy() >= 1
}

// Decode decodes JPEG/PNG bytes, honours EXIF orientation and flattens any
// transparency onto white so later channel math sees opaque pixels.
func Decode(data []byte) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("decoded image is empty (%dx%d)", b.Dx(), b.Dy())
	}

	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0), nil
}

// Format reports the encoding of data ("jpeg", "png", "gif", ...) from its
// header without decoding the pixels
func Format(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to read image header: %w", err)
	}
	return format, nil
}

// EncodePNG serialises img for the recognition engine
func EncodePNG(img image.Image) ([]byte, error) {
	if !Valid(img) {
		return nil, fmt.Errorf("cannot encode empty image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Grayscale reduces img to luminance (Rec. 601 weights), keeping three equal channels
func Grayscale(img image.Image) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	return imaging.Grayscale(img)
}

// Invert replaces every channel value v with 255-v
func Invert(img image.Image) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	return imaging.Invert(img)
}

// EnhanceContrast applies v*scale+offset to each channel, clamped to [0,255]
func EnhanceContrast(img image.Image, scale, offset float64) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R)*scale + offset),
			G: clamp8(float64(c.G)*scale + offset),
			B: clamp8(float64(c.B)*scale + offset),
			A: c.A,
		}
	})
}

// EnhanceForDisplay stretches contrast around mid-gray. Segment displays have
// little dynamic range, so pixels are pushed away from 128 by
// DisplayContrastFactor.
func EnhanceForDisplay(img image.Image) *image.NRGBA {
	return StretchContrast(img, DisplayContrastFactor)
}

// StretchContrast applies (v-128)*factor+128 to each channel
func StretchContrast(img image.Image, factor float64) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8((float64(c.R)-128)*factor + 128),
			G: clamp8((float64(c.G)-128)*factor + 128),
			B: clamp8((float64(c.B)-128)*factor + 128),
			A: c.A,
		}
	})
}

func clone(img image.Image) *image.NRGBA {
	if img == nil {
		return nil
	}
	return imaging.Clone(img)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// luminance returns the Rec. 601 luma of an NRGBA pixel, rounded to an
// integer level so a gray pixel maps exactly to its own value
func luminance(c color.NRGBA) float64 {
	y := (299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B) + 500) / 1000
	return float64(y)
}

// lumaPlane returns luminance values in row-major order for an image anchored at (0,0)
func lumaPlane(img *image.NRGBA) []float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			plane[y*w+x] = luminance(img.NRGBAAt(x, y))
		}
	}
	return plane
}
