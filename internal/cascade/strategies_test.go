package cascade

import (
	"bytes"
	"context"
	"image"
	"testing"

	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/numeric"
	"github.com/adverant/nexus/scaleocr-worker/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInput(t *testing.T, engine ocr.Engine, w, h int) *Input {
	t.Helper()
	data := pngImage(t, w, h, 220, 20)
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	return &Input{
		Raw:        data,
		Image:      img,
		Validator:  numeric.DefaultValidator(),
		recognizer: ocr.NewAdapter(engine),
		logger:     logging.NewNopLogger(),
		strategy:   "test",
	}
}

func TestDisplayPrefersLongestDigitString(t *testing.T) {
	answers := map[ocr.Segmentation]string{
		ocr.SegmentSingleWord:   "12",
		ocr.SegmentSingleLine:   "14297",
		ocr.SegmentUniformBlock: "142976",
		ocr.SegmentRawLine:      "142.9",
		ocr.SegmentSingleChar:   "1",
		ocr.SegmentCircleWord:   "942976",
	}
	engine := &scriptedEngine{answer: func(cfg ocr.RecognitionConfig) (string, error) {
		return answers[cfg.Segmentation], nil
	}}
	in := newInput(t, engine, 20, 8)

	c, ok := Display{}.Run(context.Background(), in)
	require.True(t, ok)
	assert.Equal(t, 142976.0, c.Value, "ties keep the first six-digit read")

	calls := engine.Calls()
	require.Len(t, calls, 6)
	for _, call := range calls {
		assert.Equal(t, ocr.DigitWhitelist, call.cfg.Whitelist)
		assert.Equal(t, ocr.EngineModeLSTM, call.cfg.EngineMode)
		assert.True(t, call.cfg.NumericMode)
		assert.Equal(t, 300, call.cfg.DPI)
		assert.Equal(t, 100, call.width, "display upscales 5x")
	}
}

func TestLongIntegerRejectsDoubledDigitRuns(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "0142976142", nil
	}}
	in := newInput(t, engine, 20, 8)

	_, ok := LongInteger{}.Run(context.Background(), in)
	assert.False(t, ok)
}

func TestSafeScaleSkipsLargeImages(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "5", nil
	}}

	_, ok := SafeScale{}.Run(context.Background(), newInput(t, engine, 240, 60))
	assert.False(t, ok)
	assert.Empty(t, engine.Calls())

	c, ok := SafeScale{}.Run(context.Background(), newInput(t, engine, 240, 20))
	require.True(t, ok, "a short but wide crop is still scaled")
	assert.Equal(t, 5.0, c.Value)
	assert.Equal(t, 720, engine.Calls()[0].width)
}

func TestSweepReturnsStrongCandidateImmediately(t *testing.T) {
	answers := map[ocr.Segmentation]string{
		ocr.SegmentSingleWord:   "7",
		ocr.SegmentSingleLine:   "1234",
		ocr.SegmentUniformBlock: "5.5",
	}
	engine := &scriptedEngine{answer: func(cfg ocr.RecognitionConfig) (string, error) {
		return answers[cfg.Segmentation], nil
	}}

	c, ok := SegmentationSweep{}.Run(context.Background(), newInput(t, engine, 20, 8))
	require.True(t, ok)
	assert.Equal(t, 1234.0, c.Value)
	assert.Len(t, engine.Calls(), 2)
}

func TestSweepFallsBackToFirstShortCandidate(t *testing.T) {
	answers := map[ocr.Segmentation]string{
		ocr.SegmentSingleLine:   "42",
		ocr.SegmentUniformBlock: "7",
	}
	engine := &scriptedEngine{answer: func(cfg ocr.RecognitionConfig) (string, error) {
		return answers[cfg.Segmentation], nil
	}}

	c, ok := SegmentationSweep{}.Run(context.Background(), newInput(t, engine, 20, 8))
	require.True(t, ok)
	assert.Equal(t, 42.0, c.Value)
	assert.Len(t, engine.Calls(), 4)
}

func TestHighContrastSelectsDecimal(t *testing.T) {
	n := 0
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		n++
		if n == 1 {
			return "125", nil
		}
		return "12.5", nil
	}}

	c, ok := HighContrast{}.Run(context.Background(), newInput(t, engine, 30, 12))
	require.True(t, ok)
	assert.Equal(t, 12.5, c.Value)
	for _, call := range engine.Calls() {
		assert.Equal(t, ocr.SegmentSparseWord, call.cfg.Segmentation)
	}
}

func TestStrategiesLeaveInputImageUntouched(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "", nil
	}}
	in := newInput(t, engine, 30, 12)
	before := in.Image.At(15, 6)
	bounds := in.Image.Bounds()

	for _, s := range DefaultStrategies() {
		s.Run(context.Background(), in)
	}

	assert.Equal(t, bounds, in.Image.Bounds())
	assert.Equal(t, before, in.Image.At(15, 6))
}
