package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	log, err := New("debug", "production")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New("", "development")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud", "production")
	assert.Error(t, err)
}

func TestNamedWithNilBase(t *testing.T) {
	assert.NotNil(t, Named(nil, "x"))
}
