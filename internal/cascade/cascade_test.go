package cascade

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineCall struct {
	cfg    ocr.RecognitionConfig
	width  int
	height int
}

// scriptedEngine answers each call from a function of the config
type scriptedEngine struct {
	mu     sync.Mutex
	calls  []engineCall
	answer func(cfg ocr.RecognitionConfig) (string, error)
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Recognize(_ context.Context, data []byte, cfg ocr.RecognitionConfig) (string, error) {
	call := engineCall{cfg: cfg}
	if ic, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		call.width, call.height = ic.Width, ic.Height
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	return s.answer(cfg)
}

func (s *scriptedEngine) Calls() []engineCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engineCall(nil), s.calls...)
}

func pngImage(t *testing.T, w, h int, bg, fg uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := bg
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				v = fg
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newExtractor(engine ocr.Engine, opts ...Option) (*Extractor, *ocr.Adapter) {
	adapter := ocr.NewAdapter(engine)
	return NewExtractor(adapter, opts...), adapter
}

func TestExtractCleanImageStopsAtDirect(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "0.336\n", nil
	}}
	extractor, adapter := newExtractor(engine)

	result, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 600, 200, 250, 10),
		MimeType: "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.336, result.Value)
	assert.Equal(t, "direct", result.Strategy)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int64(1), adapter.Calls())
	assert.Equal(t, ocr.SegmentAuto, engine.Calls()[0].cfg.Segmentation)
	assert.Empty(t, engine.Calls()[0].cfg.Whitelist)
}

func TestExtractLowContrastCropReachesLongInteger(t *testing.T) {
	// Only a digit-only single-line read recovers the value; earlier
	// strategies see noise.
	engine := &scriptedEngine{answer: func(cfg ocr.RecognitionConfig) (string, error) {
		if cfg.Whitelist == ocr.DigitWhitelist && cfg.Segmentation == ocr.SegmentSingleLine {
			return "142976", nil
		}
		switch cfg.Segmentation {
		case ocr.SegmentAuto:
			return "lOl", nil
		case ocr.SegmentSingleWord:
			return "", nil
		default:
			return "..", nil
		}
	}}
	extractor, _ := newExtractor(engine)

	result, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 30, 10, 120, 100),
		MimeType: "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, 142976.0, result.Value)
	assert.Equal(t, "long-integer", result.Strategy)

	calls := engine.Calls()
	require.Len(t, calls, 6, "direct, safe-scale, three decimal modes, long-integer")
	assert.Equal(t, 90, calls[1].width, "safe-scale triples the crop")
	assert.Equal(t, 30, calls[1].height)
	assert.Equal(t, 60, calls[2].width, "decimal-focused doubles the crop")
	assert.Equal(t, 120, calls[5].width, "long-integer stretches 4x horizontally")
	assert.Equal(t, 20, calls[5].height, "and 2x vertically")
}

func TestExtractRejectsUnsupportedType(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "1", nil
	}}
	extractor, adapter := newExtractor(engine)

	_, err := extractor.Extract(context.Background(), RawImage{
		Data:     []byte("GIF89a...."),
		MimeType: "image/gif",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, int64(0), adapter.Calls())
}

func TestExtractRejectsMissingAndUndecodableImages(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "1", nil
	}}
	extractor, adapter := newExtractor(engine)

	_, err := extractor.Extract(context.Background(), RawImage{MimeType: "image/png"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = extractor.Extract(context.Background(), RawImage{
		Data:     []byte("not really a jpeg"),
		MimeType: "image/jpeg",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, int64(0), adapter.Calls())
}

func TestExtractRejectsContentThatDoesNotMatchDeclaredType(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "1", nil
	}}
	extractor, adapter := newExtractor(engine)

	src := image.NewPaletted(image.Rect(0, 0, 40, 12), color.Palette{color.White, color.Black})
	var gifData bytes.Buffer
	require.NoError(t, gif.Encode(&gifData, src, nil))

	var jpegData bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpegData, image.NewGray(image.Rect(0, 0, 40, 12)), nil))

	tests := []struct {
		name string
		raw  RawImage
	}{
		{"gif declared as png", RawImage{Data: gifData.Bytes(), MimeType: "image/png"}},
		{"gif declared as jpeg", RawImage{Data: gifData.Bytes(), MimeType: "image/jpeg"}},
		{"jpeg declared as png", RawImage{Data: jpegData.Bytes(), MimeType: "image/png"}},
		{"png declared as jpg", RawImage{Data: pngImage(t, 40, 12, 200, 30), MimeType: "image/jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractor.Extract(context.Background(), tt.raw)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	assert.Equal(t, int64(0), adapter.Calls())

	result, err := extractor.Extract(context.Background(), RawImage{Data: jpegData.Bytes(), MimeType: "image/jpg"})
	require.NoError(t, err, "jpeg declared as jpg reaches the cascade")
	assert.Equal(t, 1.0, result.Value)
	assert.Equal(t, int64(1), adapter.Calls())
}

func TestExtractExhaustionFailsWithNoNumberDetected(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "abc", nil
	}}
	extractor, _ := newExtractor(engine)

	_, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 40, 12, 200, 30),
		MimeType: "image/png",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoNumberDetected)

	// direct 1, safe-scale 1, decimal 3, long-integer 1, display 6,
	// inverted 1, high-contrast 2, sweep 4
	assert.Len(t, engine.Calls(), 19)
}

func TestExtractAbsorbsEngineFailures(t *testing.T) {
	engine := &scriptedEngine{answer: func(cfg ocr.RecognitionConfig) (string, error) {
		if cfg.Segmentation == ocr.SegmentSparseWord {
			return "12.5", nil
		}
		return "", errors.New("engine crashed")
	}}
	extractor, _ := newExtractor(engine)

	result, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 40, 12, 200, 30),
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, 12.5, result.Value)
	assert.Equal(t, "high-contrast", result.Strategy)

	failed := 0
	for _, a := range result.Trace {
		if a.Failed {
			failed++
		}
	}
	assert.Equal(t, 13, failed)
}

func TestExtractAcceptedValuesStayInRange(t *testing.T) {
	engine := &scriptedEngine{answer: func(cfg ocr.RecognitionConfig) (string, error) {
		if cfg.Segmentation == ocr.SegmentRawLine {
			return "250.5", nil
		}
		return "-5000000", nil
	}}
	extractor, _ := newExtractor(engine)

	result, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 40, 12, 200, 30),
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "decimal-focused", result.Strategy)
	assert.Equal(t, 250.5, result.Value)
}

func TestExtractTinyImageSkipsPixelStrategies(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "?", nil
	}}
	extractor, _ := newExtractor(engine)

	_, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 2, 2, 255, 0),
		MimeType: "image/png",
	})
	assert.ErrorIs(t, err, apperrors.ErrNoNumberDetected)
	assert.Len(t, engine.Calls(), 5, "direct plus the four sweep layouts")
}

func TestExtractHonoursCancellation(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "1", nil
	}}
	extractor, adapter := newExtractor(engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := extractor.Extract(ctx, RawImage{
		Data:     pngImage(t, 40, 12, 200, 30),
		MimeType: "image/png",
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), adapter.Calls())
}

func TestExtractWithCustomStrategies(t *testing.T) {
	engine := &scriptedEngine{answer: func(ocr.RecognitionConfig) (string, error) {
		return "7", nil
	}}
	extractor, _ := newExtractor(engine, WithStrategies(Inverted{}, Direct{}))

	assert.Equal(t, []string{"inverted", "direct"}, extractor.Strategies())

	result, err := extractor.Extract(context.Background(), RawImage{
		Data:     pngImage(t, 40, 12, 200, 30),
		MimeType: "png",
	})
	require.NoError(t, err)
	assert.Equal(t, "inverted", result.Strategy)
}

func TestDefaultStrategyOrder(t *testing.T) {
	extractor, _ := newExtractor(&scriptedEngine{})
	assert.Equal(t, []string{
		"direct",
		"safe-scale",
		"decimal-focused",
		"long-integer",
		"display",
		"inverted",
		"high-contrast",
		"segmentation-sweep",
	}, extractor.Strategies())
}

func TestRawImageValidate(t *testing.T) {
	tests := []struct {
		mime string
		ok   bool
	}{
		{"image/jpeg", true},
		{"image/jpg", true},
		{"IMAGE/PNG", true},
		{"image/png; charset=binary", true},
		{"jpeg", true},
		{"image/gif", false},
		{"application/pdf", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			err := RawImage{Data: []byte{1}, MimeType: tt.mime}.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			}
		})
	}
}
