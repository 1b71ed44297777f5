package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/scaleocr-worker/internal/cascade"
)

func TestDetectMimeType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}

	assert.Equal(t, "image/png", detectMimeType("photo.bin", png))
	assert.Equal(t, "image/jpeg", detectMimeType("photo", jpeg))
	assert.Equal(t, "image/png", detectMimeType("scale.PNG", []byte("not really")))
	assert.Equal(t, "image/jpeg", detectMimeType("scale.jpeg", []byte("not really")))
	assert.Equal(t, "text/plain; charset=utf-8", detectMimeType("notes.txt", []byte("hello")))
}

func TestPrintResult(t *testing.T) {
	result := &cascade.Result{Value: 0.336, Text: "0.336", Strategy: "direct", Attempts: 1}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, result, false))
	assert.Equal(t, "0.336\t(strategy=direct attempts=1)\n", buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, result, true))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 0.336, decoded["Value"])
	assert.Equal(t, "direct", decoded["Strategy"])
}

func TestStrategiesCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"strategies"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "1. direct\n")
	assert.Contains(t, buf.String(), "8. segmentation-sweep\n")
}
