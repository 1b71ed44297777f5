package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTesseractEngineDefaults(t *testing.T) {
	engine, err := NewTesseractEngine(nil)
	require.NoError(t, err)
	assert.Equal(t, "eng", engine.config.Language)
	assert.Equal(t, os.TempDir(), engine.config.TempDir)
	assert.Equal(t, "tesseract", engine.Name())
}

func TestNewTesseractEngineRejectsMissingTessdata(t *testing.T) {
	_, err := NewTesseractEngine(&TesseractConfig{TessdataPrefix: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestTesseractRecognizeHonoursCancelledContext(t *testing.T) {
	engine, err := NewTesseractEngine(&TesseractConfig{})
	require.NoError(t, err)
	engine.clientFactory = func() *gosseract.Client {
		t.Fatal("client must not be created for a cancelled context")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Recognize(ctx, []byte{1, 2, 3}, RecognitionConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineModeConfigFileIsRemoved(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewTesseractEngine(&TesseractConfig{TempDir: dir})
	require.NoError(t, err)

	path, cleanup, err := engine.writeEngineModeConfig(EngineModeLSTM)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tessedit_ocr_engine_mode 1\n", string(content))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEngineModeNumbering(t *testing.T) {
	assert.Equal(t, 0, engineMode(EngineModeLegacy))
	assert.Equal(t, 1, engineMode(EngineModeLSTM))
	assert.Equal(t, 2, engineMode(EngineModeCombined))
	assert.Equal(t, 3, engineMode(EngineModeDefault))
}

func TestEngineModeConfigFileForEachMode(t *testing.T) {
	engine, err := NewTesseractEngine(&TesseractConfig{TempDir: t.TempDir()})
	require.NoError(t, err)

	for mode, want := range map[EngineMode]string{
		EngineModeLegacy:   "tessedit_ocr_engine_mode 0\n",
		EngineModeCombined: "tessedit_ocr_engine_mode 2\n",
	} {
		path, cleanup, err := engine.writeEngineModeConfig(mode)
		require.NoError(t, err)
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(content), mode.String())
		cleanup()
	}
}
