package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForVerbosity(t *testing.T) {
	assert.Equal(t, "error", ForVerbosity("agora", 0).Level)
	assert.Equal(t, "info", ForVerbosity("agora", 1).Level)
	assert.Equal(t, "debug", ForVerbosity("agora", 2).Level)
	assert.Equal(t, "debug", ForVerbosity("agora", 3).Level)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = NewLogger(&LogConfig{
		Level:            "not-a-level",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		ServiceName:      "test",
	})
	require.NoError(t, err, "unknown levels fall back to info")
	assert.NotNil(t, logger)
}
