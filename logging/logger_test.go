package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	logger, err := New("production")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("dev")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger, err := New("production")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	t.Setenv("LOG_LEVEL", "loud")
	_, err = New("production")
	assert.Error(t, err)
}
