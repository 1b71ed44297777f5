package imageops

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// contentTolerance is the luminance distance from the background
	// estimate at which a pixel counts as content.
	contentTolerance = 48.0

	// minContentRun is the number of consecutive content pixels a row or
	// column needs before it is treated as the content edge. Single stray
	// pixels (sensor noise, JPEG ringing) are ignored.
	minContentRun = 2
)

// CropToContent trims uniform margins. The background is estimated from the
// mean border luminance; each edge is scanned inward until a row/column holds
// a run of content pixels. Images without detectable content are returned
// unchanged.
func CropToContent(img image.Image) *image.NRGBA {
	if !Applicable(img) {
		return clone(img)
	}

	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	luma := lumaPlane(src)
	bg := borderMean(luma, w, h)

	isContent := func(x, y int) bool {
		return math.Abs(luma[y*w+x]-bg) > contentTolerance
	}

	rowHasRun := func(y int) bool {
		run := 0
		for x := 0; x < w; x++ {
			if isContent(x, y) {
				run++
				if run >= minContentRun {
					return true
				}
			} else {
				run = 0
			}
		}
		return false
	}

	colHasRun := func(x int) bool {
		run := 0
		for y := 0; y < h; y++ {
			if isContent(x, y) {
				run++
				if run >= minContentRun {
					return true
				}
			} else {
				run = 0
			}
		}
		return false
	}

	top := 0
	for top < h && !rowHasRun(top) {
		top++
	}
	if top == h {
		return src
	}

	bottom := h - 1
	for bottom > top && !rowHasRun(bottom) {
		bottom--
	}

	left := 0
	for left < w && !colHasRun(left) {
		left++
	}
	if left == w {
		return src
	}

	right := w - 1
	for right > left && !colHasRun(right) {
		right--
	}

	return imaging.Crop(src, image.Rect(left, top, right+1, bottom+1))
}

func borderMean(luma []float64, w, h int) float64 {
	var sum float64
	var n int
	for x := 0; x < w; x++ {
		sum += luma[x] + luma[(h-1)*w+x]
		n += 2
	}
	for y := 1; y < h-1; y++ {
		sum += luma[y*w] + luma[y*w+w-1]
		n += 2
	}
	return sum / float64(n)
}
