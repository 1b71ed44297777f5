/**
 * OCR Adapter - bounded, optionally serialized engine calls
 *
 * Every failure mode of a single recognition call (engine error, timeout,
 * cancellation, unusable input) surfaces as ENGINE_FAILURE so the cascade can
 * treat it as "no candidate" and move on.
 */

package ocr

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/imageops"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
)

// DefaultTimeout bounds a single engine call
const DefaultTimeout = 15 * time.Second

// Adapter wraps an Engine with a per-call timeout
type Adapter struct {
	engine  Engine
	timeout time.Duration
	sem     chan struct{} // nil unless the engine is not safe for concurrent use
	logger  *logging.Logger

	calls atomic.Int64
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSerialization allows only one engine call in flight at a time
func WithSerialization() AdapterOption {
	return func(a *Adapter) {
		a.sem = make(chan struct{}, 1)
	}
}

// WithAdapterLogger sets the adapter logger
func WithAdapterLogger(l *logging.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter creates an adapter around engine
func NewAdapter(engine Engine, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		engine:  engine,
		timeout: DefaultTimeout,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Calls reports how many engine invocations this adapter has started
func (a *Adapter) Calls() int64 {
	return a.calls.Load()
}

// RecognizeImage encodes a pixel buffer and recognizes it
func (a *Adapter) RecognizeImage(ctx context.Context, img image.Image, cfg RecognitionConfig) (string, error) {
	if !imageops.Valid(img) {
		return "", apperrors.NewEngineFailureError(a.engine.Name(), cfg.String(),
			fmt.Errorf("image has no pixels"))
	}

	data, err := imageops.EncodePNG(img)
	if err != nil {
		return "", apperrors.NewEngineFailureError(a.engine.Name(), cfg.String(), err)
	}

	return a.Recognize(ctx, data, cfg)
}

// Recognize runs one engine call over encoded image bytes
func (a *Adapter) Recognize(ctx context.Context, data []byte, cfg RecognitionConfig) (string, error) {
	name := a.engine.Name()
	if len(data) == 0 {
		return "", apperrors.NewEngineFailureError(name, cfg.String(), fmt.Errorf("empty image"))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.sem != nil {
		select {
		case a.sem <- struct{}{}:
		case <-callCtx.Done():
			return "", apperrors.NewEngineFailureError(name, cfg.String(),
				fmt.Errorf("waiting for engine: %w", callCtx.Err()))
		}
	}

	type recognition struct {
		text string
		err  error
	}

	// Buffered so an abandoned call can still complete and release the engine
	done := make(chan recognition, 1)
	a.calls.Add(1)
	start := time.Now()

	go func() {
		if a.sem != nil {
			defer func() { <-a.sem }()
		}
		defer func() {
			if r := recover(); r != nil {
				done <- recognition{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		text, err := a.engine.Recognize(callCtx, data, cfg)
		done <- recognition{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			a.logger.Debug("Engine call failed",
				"engine", name,
				"config", cfg.String(),
				"error", res.err)
			return "", apperrors.NewEngineFailureError(name, cfg.String(), res.err)
		}
		a.logger.Debug("Engine call completed",
			"engine", name,
			"config", cfg.String(),
			"chars", len(res.text),
			"duration", time.Since(start))
		return res.text, nil

	case <-callCtx.Done():
		a.logger.Warn("Engine call abandoned",
			"engine", name,
			"config", cfg.String(),
			"timeout", a.timeout,
			"error", callCtx.Err())
		return "", apperrors.NewEngineFailureError(name, cfg.String(), callCtx.Err())
	}
}
