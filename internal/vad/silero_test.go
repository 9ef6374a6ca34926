package vad

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSileroModelRejectsEmptyPath(t *testing.T) {
	_, err := NewSileroModel(SileroConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model path is empty")
}

func TestNewSileroModelRejectsMissingFile(t *testing.T) {
	_, err := NewSileroModel(SileroConfig{
		ModelPath:  filepath.Join(t.TempDir(), "missing.onnx"),
		Threshold:  0.35,
		SampleRate: 16000,
	})
	require.Error(t, err)
}
