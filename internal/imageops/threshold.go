package imageops

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ThresholdKind selects how Binarize decides between black and white
type ThresholdKind int

const (
	// ThresholdGlobal compares every pixel against one fixed level.
	ThresholdGlobal ThresholdKind = iota
	// ThresholdAdaptive compares every pixel against the mean of its
	// block neighbourhood minus a constant.
	ThresholdAdaptive
)

// Threshold describes a binarization strategy
type Threshold struct {
	Kind      ThresholdKind
	Level     uint8 // global
	BlockSize int   // adaptive, odd
	C         float64
}

// GlobalThreshold returns a fixed-level threshold
func GlobalThreshold(level uint8) Threshold {
	return Threshold{Kind: ThresholdGlobal, Level: level}
}

// AdaptiveThreshold returns a local mean threshold. Even block sizes are
// rounded up to the next odd value.
func AdaptiveThreshold(blockSize int, c float64) Threshold {
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++
	}
	return Threshold{Kind: ThresholdAdaptive, BlockSize: blockSize, C: c}
}

// Binarize maps img to pure black/white using t
func Binarize(img image.Image, t Threshold) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}
	if t.Kind == ThresholdAdaptive {
		return binarizeAdaptive(imaging.Clone(img), t)
	}

	level := float64(t.Level)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if luminance(c) >= level {
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		return color.NRGBA{A: 255}
	})
}

// binarizeAdaptive uses a summed-area table so each block mean costs O(1);
// the result equals the naive per-pixel neighbourhood average.
func binarizeAdaptive(src *image.NRGBA, t Threshold) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	luma := lumaPlane(src)

	stride := w + 1
	integral := make([]float64, stride*(h+1))
	for y := 1; y <= h; y++ {
		var row float64
		for x := 1; x <= w; x++ {
			row += luma[(y-1)*w+(x-1)]
			integral[y*stride+x] = integral[(y-1)*stride+x] + row
		}
	}

	r := t.BlockSize / 2
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-r), min(h-1, y+r)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-r), min(w-1, x+r)
			sum := integral[(y1+1)*stride+(x1+1)] - integral[y0*stride+(x1+1)] -
				integral[(y1+1)*stride+x0] + integral[y0*stride+x0]
			count := float64((x1 - x0 + 1) * (y1 - y0 + 1))

			v := uint8(0)
			if luma[y*w+x] > sum/count-t.C {
				v = 255
			}
			dst.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return dst
}
