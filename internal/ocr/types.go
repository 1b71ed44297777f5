/**
 * OCR Types - recognition configuration shared by the adapter and engines
 */

package ocr

import (
	"context"
	"fmt"
)

// Segmentation describes the layout the engine should assume
type Segmentation int

const (
	SegmentAuto Segmentation = iota
	SegmentSingleWord
	SegmentSingleLine
	SegmentRawLine
	SegmentSingleChar
	SegmentSparseWord
	SegmentUniformBlock
	SegmentCircleWord
)

func (s Segmentation) String() string {
	switch s {
	case SegmentAuto:
		return "auto"
	case SegmentSingleWord:
		return "single-word"
	case SegmentSingleLine:
		return "single-line"
	case SegmentRawLine:
		return "raw-line"
	case SegmentSingleChar:
		return "single-char"
	case SegmentSparseWord:
		return "sparse-word"
	case SegmentUniformBlock:
		return "uniform-block"
	case SegmentCircleWord:
		return "circle-word"
	default:
		return fmt.Sprintf("segmentation(%d)", int(s))
	}
}

// EngineMode selects the recognizer backend inside the engine
type EngineMode int

const (
	EngineModeDefault EngineMode = iota
	EngineModeLegacy
	EngineModeLSTM
	EngineModeCombined
)

func (m EngineMode) String() string {
	switch m {
	case EngineModeDefault:
		return "default"
	case EngineModeLegacy:
		return "legacy"
	case EngineModeLSTM:
		return "lstm"
	case EngineModeCombined:
		return "combined"
	default:
		return fmt.Sprintf("engine-mode(%d)", int(m))
	}
}

// Character whitelists used by the cascade
const (
	DigitWhitelist   = "0123456789"
	DecimalWhitelist = "0123456789.,"
)

// RecognitionConfig is built fresh for every engine call and never mutated
type RecognitionConfig struct {
	Segmentation Segmentation
	Whitelist    string
	EngineMode   EngineMode
	NumericMode  bool
	DPI          int
}

func (c RecognitionConfig) String() string {
	return fmt.Sprintf("psm=%s whitelist=%q oem=%s numeric=%t dpi=%d",
		c.Segmentation, c.Whitelist, c.EngineMode, c.NumericMode, c.DPI)
}

// Engine is an external text-recognition capability. Implementations must
// not keep configuration between calls.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, cfg RecognitionConfig) (string, error)
}
