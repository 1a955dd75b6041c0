package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLossChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "losses.html")
	require.NoError(t, WriteLossChart(path, "test-run", []float64{3.0, 2.5, 2.0}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "echarts")
	assert.Contains(t, string(data), "episode loss")
}
