/**
 * Tesseract Engine - gosseract-backed recognition
 *
 * Each call constructs, configures, invokes and closes its own client so no
 * configuration leaks between cascade steps.
 */

package ocr

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	TessdataPrefix string
	Language       string
	TempDir        string // engine-mode config files are written here
}

// TesseractEngine performs recognition with libtesseract via gosseract
type TesseractEngine struct {
	config        TesseractConfig
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine creates a new Tesseract engine
func NewTesseractEngine(cfg *TesseractConfig) (*TesseractEngine, error) {
	if cfg == nil {
		cfg = &TesseractConfig{}
	}

	c := *cfg
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.TessdataPrefix != "" {
		if _, err := os.Stat(c.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("tessdata prefix %s is not accessible: %w", c.TessdataPrefix, err)
		}
	}

	return &TesseractEngine{
		config:        c,
		clientFactory: gosseract.NewClient,
	}, nil
}

// Name identifies the engine in logs and errors
func (t *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs one recognition pass over an encoded image
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte, cfg RecognitionConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := t.clientFactory()
	defer client.Close()

	if t.config.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.config.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	if err := client.SetLanguage(t.config.Language); err != nil {
		return "", fmt.Errorf("failed to set language %q: %w", t.config.Language, err)
	}

	// The engine mode is an init-time parameter, only reachable through a config file
	if cfg.EngineMode != EngineModeDefault {
		path, cleanup, err := t.writeEngineModeConfig(cfg.EngineMode)
		if err != nil {
			return "", err
		}
		defer cleanup()
		if err := client.SetConfigFile(path); err != nil {
			return "", fmt.Errorf("failed to set engine mode config: %w", err)
		}
	}

	if err := client.SetPageSegMode(pageSegMode(cfg.Segmentation)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	for key, value := range variables(cfg) {
		if err := client.SetVariable(gosseract.SettableVariable(key), value); err != nil {
			return "", fmt.Errorf("failed to set variable %s: %w", key, err)
		}
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// writeEngineModeConfig writes a one-line Tesseract config file. The returned
// cleanup removes it and must run on every exit path.
func (t *TesseractEngine) writeEngineModeConfig(mode EngineMode) (string, func(), error) {
	f, err := os.CreateTemp(t.config.TempDir, "scaleocr-oem-*.cfg")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create engine config: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	_, werr := fmt.Fprintf(f, "tessedit_ocr_engine_mode %d\n", engineMode(mode))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write engine config: %v %v", werr, cerr)
	}

	return path, cleanup, nil
}

func variables(cfg RecognitionConfig) map[string]string {
	vars := map[string]string{}
	if cfg.NumericMode {
		vars["classify_bln_numeric_mode"] = "1"
		vars["textord_min_linesize"] = "1.0"
		vars["preserve_interword_spaces"] = "0"
	}
	if cfg.DPI > 0 {
		vars["user_defined_dpi"] = strconv.Itoa(cfg.DPI)
	}
	return vars
}

func pageSegMode(s Segmentation) gosseract.PageSegMode {
	switch s {
	case SegmentSingleWord:
		return gosseract.PSM_SINGLE_WORD
	case SegmentSingleLine:
		return gosseract.PSM_SINGLE_LINE
	case SegmentRawLine:
		return gosseract.PSM_RAW_LINE
	case SegmentSingleChar:
		return gosseract.PSM_SINGLE_CHAR
	case SegmentSparseWord:
		return gosseract.PSM_SPARSE_TEXT
	case SegmentUniformBlock:
		return gosseract.PSM_SINGLE_BLOCK
	case SegmentCircleWord:
		return gosseract.PSM_CIRCLE_WORD
	default:
		return gosseract.PSM_AUTO
	}
}

// engineMode maps to Tesseract's tessedit_ocr_engine_mode numbering.
// gosseract has no setter for it, so it travels through a config file.
func engineMode(m EngineMode) int {
	switch m {
	case EngineModeLegacy:
		return 0
	case EngineModeLSTM:
		return 1
	case EngineModeCombined:
		return 2
	default:
		return 3
	}
}
