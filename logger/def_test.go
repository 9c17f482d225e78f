package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		err := Init("verbose")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "verbose")
	})

	t.Run("development", func(t *testing.T) {
		require.NoError(t, InitDevelopment())
		assert.NotNil(t, Log())
		assert.NotNil(t, S())
	})

	t.Run("production", func(t *testing.T) {
		require.NoError(t, Init(""))
		assert.Same(t, Log(), zap.L())
	})
}

func TestSet(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))

	Log().Info("model loaded", zap.String("backend", "onnx"))
	S().Infow("detected items", "count", 3)
	Sync()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "model loaded", entries[0].Message)
	assert.Equal(t, "onnx", entries[0].ContextMap()["backend"])
	assert.EqualValues(t, 3, entries[1].ContextMap()["count"])
}
