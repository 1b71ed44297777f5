/**
 * Strategy Cascade - numeric reading extraction
 *
 * A request is validated, decoded once, then folded over the ordered
 * strategy list. The first strategy that yields a validated candidate ends
 * the cascade. Per-strategy failures are absorbed; only invalid input,
 * exhaustion and context cancellation reach the caller.
 */

package cascade

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/imageops"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/numeric"
)

// Result is an accepted reading
type Result struct {
	Value    float64
	Text     string // normalized text the value was parsed from
	Strategy string
	Attempts int // engine calls made, failed ones included
	Trace    []Attempt
	Duration time.Duration
}

// Extractor runs the strategy cascade
type Extractor struct {
	recognizer Recognizer
	strategies []Strategy
	validator  numeric.Validator
	logger     *logging.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithStrategies replaces the default strategy list
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// WithValidator replaces the default validator
func WithValidator(v numeric.Validator) Option {
	return func(e *Extractor) {
		e.validator = v
	}
}

// WithLogger sets the extractor logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an extractor over recognizer
func NewExtractor(recognizer Recognizer, opts ...Option) *Extractor {
	e := &Extractor{
		recognizer: recognizer,
		strategies: DefaultStrategies(),
		validator:  numeric.DefaultValidator(),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns the names of the configured strategies in order
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract reads a single number from raw
func (e *Extractor) Extract(ctx context.Context, raw RawImage) (*Result, error) {
	start := time.Now()

	if err := raw.Validate(); err != nil {
		return nil, err
	}

	// The content must be what the upload claims; other registered decoders
	// (gif, bmp, tiff) would otherwise accept it
	format, err := imageops.Format(raw.Data)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("image could not be decoded", err)
	}
	if format != raw.DeclaredFormat() {
		return nil, apperrors.NewInvalidInputError(
			fmt.Sprintf("image content is %s but was declared as %s", format, NormalizeMimeType(raw.MimeType)), nil)
	}

	img, err := imageops.Decode(raw.Data)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("image could not be decoded", err)
	}

	in := &Input{
		Raw:        raw.Data,
		Image:      img,
		Validator:  e.validator,
		recognizer: e.recognizer,
		logger:     e.logger,
	}

	b := img.Bounds()
	e.logger.Debug("Starting extraction cascade",
		"width", b.Dx(),
		"height", b.Dy(),
		"mime_type", raw.MimeType,
		"strategies", len(e.strategies))

	for i, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		in.strategy = strategy.Name()
		before := len(in.trace)

		candidate, ok := strategy.Run(ctx, in)
		if !ok {
			e.logger.Debug("Strategy rejected",
				"strategy", in.strategy,
				"step", i+1,
				"attempts", len(in.trace)-before)
			continue
		}

		result := &Result{
			Value:    candidate.Value,
			Text:     candidate.Text,
			Strategy: in.strategy,
			Attempts: len(in.trace),
			Trace:    in.trace,
			Duration: time.Since(start),
		}

		e.logger.Info("Reading extracted",
			"strategy", result.Strategy,
			"value", result.Value,
			"attempts", result.Attempts,
			"duration", result.Duration)

		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Info("No number detected",
		"strategies_tried", len(e.strategies),
		"attempts", len(in.trace),
		"duration", time.Since(start))

	return nil, apperrors.NewNoNumberDetectedError(len(e.strategies), len(in.trace))
}
