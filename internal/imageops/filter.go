package imageops

import (
	"image"

	"github.com/disintegration/imaging"
)

var (
	sharpenKernel = [9]float64{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	}

	gaussianKernel = [9]float64{
		1, 2, 1,
		2, 4, 2,
		1, 2, 1,
	}
)

// MaxDenoisePasses bounds Denoise.
const MaxDenoisePasses = 3

// Sharpen applies a 3x3 high-pass kernel (centre 5, edge neighbours -1)
func Sharpen(img image.Image) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	return imaging.Convolve3x3(img, sharpenKernel, nil)
}

// Denoise runs a normalised 3x3 Gaussian blur passes times (clamped to 1..MaxDenoisePasses)
func Denoise(img image.Image, passes int) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	if passes < 1 {
		passes = 1
	}
	if passes > MaxDenoisePasses {
		passes = MaxDenoisePasses
	}

	out := imaging.Convolve3x3(img, gaussianKernel, &imaging.ConvolveOptions{Normalize: true})
	for i := 1; i < passes; i++ {
		out = imaging.Convolve3x3(out, gaussianKernel, &imaging.ConvolveOptions{Normalize: true})
	}
	return out
}
