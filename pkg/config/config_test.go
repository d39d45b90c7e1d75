package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfigIsValid verifies the defaults pass validation
func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 32, cfg.ROI.Size)
	assert.Equal(t, "minmax", cfg.Display.Range)
}

// TestLoadConfigMissingFile returns defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestSaveLoadRoundTrip writes and reads back a modified configuration
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := DefaultConfig()
	cfg.ROI.Size = 12
	cfg.ROI.Shift = 15
	cfg.ROI.Shape = "circle"
	cfg.Degrade.Seed = 99
	cfg.Logging.File = "run.log"

	require.NoError(t, SaveConfig(cfg, path))
	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

// TestLoadConfigPartialFile keeps defaults for keys the file omits
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roi:\n  size: 8\n  shift: 10\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.ROI.Size)
	assert.Equal(t, 10, cfg.ROI.Shift)
	assert.Equal(t, 8, cfg.ROI.BitsPerPixel)
	assert.Equal(t, 200, cfg.Histogram.ScaleHeight)
}

// TestLoadConfigInvalidYAML reports parse errors
func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roi: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// TestCreateDefaultConfigFile writes a loadable file
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestValidate covers the rejected settings
func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero size", func(c *Config) { c.ROI.Size = 0 }},
		{"shift below size", func(c *Config) { c.ROI.Shift = c.ROI.Size - 1 }},
		{"negative skip", func(c *Config) { c.ROI.SkipCount = -1 }},
		{"bits", func(c *Config) { c.ROI.BitsPerPixel = 17 }},
		{"scale", func(c *Config) { c.Resize.Scale = 0 }},
		{"gradient", func(c *Config) { c.Degrade.Gradient = true; c.Degrade.GradientDenominator = 0 }},
		{"bar width", func(c *Config) { c.Histogram.BarWidth = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
		})
	}
}
