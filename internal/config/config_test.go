package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultOutputFormat, cfg.OutputFormat)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, DefaultXMLIndent, cfg.XMLIndent)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "isore-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: yaml\nmax_file_size: 1024\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.OutputFormat)
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	level, _ := cfg.Level()
	assert.Equal(t, slog.LevelDebug, level)

	t.Setenv("ISORE_OUTPUT_FORMAT", "json")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat, "environment overrides the file")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")

	path := filepath.Join(t.TempDir(), "isore-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: xml\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestValidate(t *testing.T) {
	cfg := &Config{OutputFormat: "table", LogLevel: "warn"}
	assert.NoError(t, cfg.Validate())

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	cfg.LogLevel, cfg.MaxFileSize = "info", -1
	assert.Error(t, cfg.Validate())
}
