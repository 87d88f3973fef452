package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("uploads_dir: data/uploads\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/uploads", cfg.UploadsDir)
	assert.Equal(t, "layouts", cfg.LayoutsDir)
	assert.Equal(t, "pandoc", cfg.Renderer.Binary)
	assert.Equal(t, "xelatex", cfg.Renderer.Engine)
	assert.Equal(t, 15*time.Minute, cfg.Assets.URLTTLDuration())
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 100, cfg.Queue.MaxSize)
	assert.Equal(t, "docpress.builds", cfg.Events.Subject)
}

func TestLoadParsesRendererTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "renderer:\n  binary: typeset\n  timeout: 90s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "typeset", cfg.Renderer.Binary)
	assert.Equal(t, 90*time.Second, cfg.Renderer.TimeoutDuration())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	assert.Error(t, err)

	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "uploads", cfg.UploadsDir)
}
