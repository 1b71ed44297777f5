package imageops

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// MaxOutputPixels caps the size of any resampled image.
const MaxOutputPixels = 40_000_000

// Scale resamples img by factor in both directions using a bicubic
// (Catmull-Rom) kernel. Output dimensions are max(floor, round(input*factor)).
func Scale(img image.Image, factor float64, minWidth, minHeight int) *image.NRGBA {
	return ScaleXY(img, factor, factor, minWidth, minHeight)
}

// ScaleXY resamples img with independent horizontal and vertical factors.
// Non-positive or non-finite factors, and outputs above MaxOutputPixels,
// leave the image unchanged.
func ScaleXY(img image.Image, factorX, factorY float64, minWidth, minHeight int) *image.NRGBA {
	if !Applicable(img) || !usableFactor(factorX) || !usableFactor(factorY) {
		return clone(img)
	}

	src := img.Bounds()
	w := scaledDimension(src.Dx(), factorX, minWidth)
	h := scaledDimension(src.Dy(), factorY, minHeight)
	if w*h > MaxOutputPixels {
		return clone(img)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

func usableFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func scaledDimension(size int, factor float64, floor int) int {
	d := int(math.Round(float64(size) * factor))
	if d < floor {
		d = floor
	}
	if d < 1 {
		d = 1
	}
	return d
}
