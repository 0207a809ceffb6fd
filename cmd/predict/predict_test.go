package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/petalnet/config"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

func TestRun_NoImage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, errors.ExitConfig, run([]string{"predict"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}

func TestRun_MissingCheckpoint(t *testing.T) {
	var stdout, stderr bytes.Buffer
	dir := t.TempDir()
	code := run([]string{"predict", filepath.Join(dir, "flower.jpg"), "--checkpoint_root", dir, "--log_format", "json"}, &stdout, &stderr)
	assert.Equal(t, errors.ExitIO, code)
	assert.Contains(t, stderr.String(), "Prediction failed")
}

func TestParseArgs_Overrides(t *testing.T) {
	_, overrides, _, err := parseArgs([]string{"predict", "flower.jpg", "--plot_path", "out/plot.png", "--top_k", "3", "--no_plot"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"path_image": "flower.jpg",
		"plot_path":  "out/plot.png",
		"top_k":      3,
		"no_plot":    true,
	}, overrides)

	cfg, err := config.LoadPredict("", overrides)
	require.NoError(t, err)
	assert.Equal(t, "out/plot.png", cfg.PlotPath)
	assert.Equal(t, 3, cfg.TopK)
}

func TestParseArgs_PathImageWins(t *testing.T) {
	_, overrides, _, err := parseArgs([]string{"predict", "a.jpg", "--path_image", "b.jpg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path_image": "b.jpg"}, overrides)
}
