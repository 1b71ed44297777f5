/**
 * Cascade Strategies
 *
 * Ordered cheapest and most general first. New strategies are appended to
 * DefaultStrategies rather than branching inside existing ones.
 */

package cascade

import (
	"context"
	"math"

	"github.com/adverant/nexus/scaleocr-worker/internal/imageops"
	"github.com/adverant/nexus/scaleocr-worker/internal/numeric"
	"github.com/adverant/nexus/scaleocr-worker/internal/ocr"
)

const (
	// MaxScaleFactor bounds the safe-scale upscale
	MaxScaleFactor = 5.0

	safeScaleMinWidth  = 200
	safeScaleMinHeight = 50
	safeScaleFactor    = 3.0

	// sweepShortDigits is the digit count at or below which an integer
	// sweep match is only used when nothing better turns up
	sweepShortDigits = 3

	displayScaleFactor = 5.0
	displayDPI         = 300
)

// DefaultStrategies returns the production cascade in evaluation order
func DefaultStrategies() []Strategy {
	return []Strategy{
		Direct{},
		SafeScale{},
		DecimalFocused{},
		LongInteger{},
		Display{},
		Inverted{},
		HighContrast{},
		SegmentationSweep{},
	}
}

// Direct recognizes the untouched upload with default segmentation
type Direct struct{}

func (Direct) Name() string { return "direct" }

func (Direct) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	text, ok := in.RecognizeRaw(ctx, ocr.RecognitionConfig{Segmentation: ocr.SegmentAuto})
	if !ok {
		return numeric.Candidate{}, false
	}
	return in.Accept(text)
}

// SafeScale enlarges small crops with a conservative contrast boost.
// Images already above the size floor are skipped.
type SafeScale struct{}

func (SafeScale) Name() string { return "safe-scale" }

func (SafeScale) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	if !imageops.Applicable(in.Image) {
		return numeric.Candidate{}, false
	}
	b := in.Image.Bounds()
	if b.Dx() >= safeScaleMinWidth && b.Dy() >= safeScaleMinHeight {
		return numeric.Candidate{}, false
	}

	img := imageops.Scale(in.Image, math.Min(safeScaleFactor, MaxScaleFactor), 50, 20)
	img = imageops.EnhanceContrast(img, 1.2, 10)

	text, ok := in.RecognizeImage(ctx, img, ocr.RecognitionConfig{
		Segmentation: ocr.SegmentSingleWord,
		Whitelist:    ocr.DecimalWhitelist,
	})
	if !ok {
		return numeric.Candidate{}, false
	}
	return in.Accept(text)
}

// DecimalFocused probes three line layouts and prefers a decimal reading
type DecimalFocused struct{}

func (DecimalFocused) Name() string { return "decimal-focused" }

func (DecimalFocused) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	if !imageops.Applicable(in.Image) {
		return numeric.Candidate{}, false
	}

	img := imageops.Scale(in.Image, 2, 1, 1)
	img = imageops.EnhanceContrast(img, 1.3, 10)

	modes := []ocr.Segmentation{ocr.SegmentSingleLine, ocr.SegmentSingleWord, ocr.SegmentRawLine}
	texts := make([]string, 0, len(modes))
	for _, mode := range modes {
		if ctx.Err() != nil {
			break
		}
		if text, ok := in.RecognizeImage(ctx, img, ocr.RecognitionConfig{
			Segmentation: mode,
			Whitelist:    ocr.DecimalWhitelist,
		}); ok {
			texts = append(texts, text)
		}
	}

	return in.Select(texts, numeric.PreferDecimal)
}

// LongInteger stretches the image horizontally so adjacent segment digits
// separate, then reads digits only
type LongInteger struct{}

func (LongInteger) Name() string { return "long-integer" }

func (LongInteger) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	if !imageops.Applicable(in.Image) {
		return numeric.Candidate{}, false
	}

	img := imageops.ScaleXY(in.Image, 4, 2, 1, 1)
	img = imageops.Grayscale(img)
	img = imageops.Sharpen(img)

	text, ok := in.RecognizeImage(ctx, img, ocr.RecognitionConfig{
		Segmentation: ocr.SegmentSingleLine,
		Whitelist:    ocr.DigitWhitelist,
	})
	if !ok {
		return numeric.Candidate{}, false
	}

	if numeric.DigitRun(text) > numeric.MaxIntegerDigits {
		in.noCandidate("digit run too long")
		return numeric.Candidate{}, false
	}
	return in.Accept(text)
}

// Display targets LED/LCD segment displays: large upscale, mid-gray stretch
// and binarization, then six segmentation variants in numeric mode. The
// longest digit string wins since short matches are the usual misread.
type Display struct{}

func (Display) Name() string { return "display" }

var displayModes = []ocr.Segmentation{
	ocr.SegmentSingleWord,
	ocr.SegmentSingleLine,
	ocr.SegmentUniformBlock,
	ocr.SegmentRawLine,
	ocr.SegmentSingleChar,
	ocr.SegmentCircleWord,
}

func (Display) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	if !imageops.Applicable(in.Image) {
		return numeric.Candidate{}, false
	}

	img := imageops.Scale(in.Image, displayScaleFactor, 1, 1)
	img = imageops.EnhanceForDisplay(img)
	img = imageops.Grayscale(img)
	img = imageops.Binarize(img, imageops.GlobalThreshold(128))

	texts := make([]string, 0, len(displayModes))
	for _, mode := range displayModes {
		if ctx.Err() != nil {
			break
		}
		if text, ok := in.RecognizeImage(ctx, img, ocr.RecognitionConfig{
			Segmentation: mode,
			Whitelist:    ocr.DigitWhitelist,
			EngineMode:   ocr.EngineModeLSTM,
			NumericMode:  true,
			DPI:          displayDPI,
		}); ok {
			texts = append(texts, text)
		}
	}

	return in.Select(texts, numeric.PreferLongest)
}

// Inverted handles light digits on a dark background
type Inverted struct{}

func (Inverted) Name() string { return "inverted" }

func (Inverted) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	if !imageops.Applicable(in.Image) {
		return numeric.Candidate{}, false
	}

	text, ok := in.RecognizeImage(ctx, imageops.Invert(in.Image), ocr.RecognitionConfig{
		Segmentation: ocr.SegmentSingleLine,
		Whitelist:    ocr.DecimalWhitelist,
	})
	if !ok {
		return numeric.Candidate{}, false
	}
	return in.Accept(text)
}

// HighContrast runs two aggressive passes with sparse segmentation: a hard
// contrast stretch, and a denoised, cropped, adaptively binarized copy.
type HighContrast struct{}

func (HighContrast) Name() string { return "high-contrast" }

func (HighContrast) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	if !imageops.Applicable(in.Image) {
		return numeric.Candidate{}, false
	}

	stretched := imageops.EnhanceContrast(in.Image, 2.5, -160)

	cleaned := imageops.Grayscale(in.Image)
	cleaned = imageops.Denoise(cleaned, 2)
	cleaned = imageops.CropToContent(cleaned)
	cleaned = imageops.Binarize(cleaned, imageops.AdaptiveThreshold(15, 7))

	cfg := ocr.RecognitionConfig{
		Segmentation: ocr.SegmentSparseWord,
		Whitelist:    ocr.DecimalWhitelist,
	}

	var texts []string
	if text, ok := in.RecognizeImage(ctx, stretched, cfg); ok {
		texts = append(texts, text)
	}
	if ctx.Err() == nil {
		if text, ok := in.RecognizeImage(ctx, cleaned, cfg); ok {
			texts = append(texts, text)
		}
	}

	return in.Select(texts, numeric.PreferDecimal)
}

// SegmentationSweep retries the untouched upload under several layouts.
// A decimal or long reading returns at once; a short integer is held back
// in case a later layout does better.
type SegmentationSweep struct{}

func (SegmentationSweep) Name() string { return "segmentation-sweep" }

var sweepModes = []ocr.Segmentation{
	ocr.SegmentSingleWord,
	ocr.SegmentSingleLine,
	ocr.SegmentUniformBlock,
	ocr.SegmentRawLine,
}

func (SegmentationSweep) Run(ctx context.Context, in *Input) (numeric.Candidate, bool) {
	var fallback numeric.Candidate
	haveFallback := false

	for _, mode := range sweepModes {
		if ctx.Err() != nil {
			break
		}
		text, ok := in.RecognizeRaw(ctx, ocr.RecognitionConfig{
			Segmentation: mode,
			Whitelist:    ocr.DecimalWhitelist,
		})
		if !ok {
			continue
		}
		c, ok := in.Validator.Accept(text)
		if !ok {
			continue
		}
		if c.HasDecimal || c.Digits > sweepShortDigits {
			return c, true
		}
		if !haveFallback {
			fallback, haveFallback = c, true
		}
	}

	if !haveFallback {
		in.noCandidate("no layout produced an acceptable number")
	}
	return fallback, haveFallback
}
