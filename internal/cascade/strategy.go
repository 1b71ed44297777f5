package cascade

import (
	"context"
	"image"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/numeric"
	"github.com/adverant/nexus/scaleocr-worker/internal/ocr"
)

// Recognizer turns an image and a recognition config into raw text.
// *ocr.Adapter is the production implementation.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, cfg ocr.RecognitionConfig) (string, error)
	RecognizeImage(ctx context.Context, img image.Image, cfg ocr.RecognitionConfig) (string, error)
}

// Strategy is one step of the cascade. Run reports a validated candidate or
// ok=false; it never returns an error because every per-step failure is
// recoverable.
type Strategy interface {
	Name() string
	Run(ctx context.Context, in *Input) (numeric.Candidate, bool)
}

// Attempt records a single engine call made by a strategy
type Attempt struct {
	Strategy string
	Config   ocr.RecognitionConfig
	Text     string
	Failed   bool
}

// Input is the read-only view of a request shared by all strategies.
// Image is never mutated; strategies derive new buffers from it.
type Input struct {
	Raw       []byte
	Image     image.Image
	Validator numeric.Validator

	recognizer Recognizer
	logger     *logging.Logger
	strategy   string
	trace      []Attempt
}

// RecognizeRaw runs the engine on the original encoded bytes. ok is false
// when the engine failed.
func (in *Input) RecognizeRaw(ctx context.Context, cfg ocr.RecognitionConfig) (string, bool) {
	text, err := in.recognizer.Recognize(ctx, in.Raw, cfg)
	return in.record(cfg, text, err)
}

// RecognizeImage runs the engine on a derived pixel buffer
func (in *Input) RecognizeImage(ctx context.Context, img image.Image, cfg ocr.RecognitionConfig) (string, bool) {
	text, err := in.recognizer.RecognizeImage(ctx, img, cfg)
	return in.record(cfg, text, err)
}

// Accept normalizes and validates text from a single-call step
func (in *Input) Accept(text string) (numeric.Candidate, bool) {
	c, ok := in.Validator.Accept(text)
	if !ok {
		in.noCandidate("text is not an acceptable number")
	}
	return c, ok
}

// Select picks the best valid candidate among texts from one step
func (in *Input) Select(texts []string, policy numeric.Policy) (numeric.Candidate, bool) {
	c, ok := numeric.Select(texts, policy, in.Validator)
	if !ok {
		in.noCandidate("no text produced an acceptable number")
	}
	return c, ok
}

func (in *Input) record(cfg ocr.RecognitionConfig, text string, err error) (string, bool) {
	a := Attempt{Strategy: in.strategy, Config: cfg, Text: text, Failed: err != nil}
	in.trace = append(in.trace, a)

	if err != nil {
		in.logger.Warn("Recognition attempt failed",
			"strategy", in.strategy,
			"config", cfg.String(),
			"error", err)
		return "", false
	}

	in.logger.Debug("Recognition attempt",
		"strategy", in.strategy,
		"config", cfg.String(),
		"text", text)
	return text, true
}

func (in *Input) noCandidate(reason string) {
	err := apperrors.NewNoCandidateError(in.strategy, reason)
	in.logger.Debug("Strategy produced no candidate", "error", err)
}
