package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[window]
title = "demo"

[shadows]
capacity = 4
bias_constant = 0.01
`))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, uint32(4), cfg.Shadows.Capacity)
	assert.Equal(t, float32(0.01), cfg.Shadows.BiasConstant)
	assert.Equal(t, uint32(2048), cfg.Shadows.Resolution)
}

func TestValidateRejectsZeroCapacity(t *testing.T) {
	_, err := Parse([]byte("[shadows]\ncapacity = 0\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("[window]\nwidth = 0\n"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadReflection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflection.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[shaders."gbuffer.vert"]
push_constant_size = 88
stage = "vertex"

[shaders."lighting.comp"]
push_constant_size = 32
stage = "compute"
`), 0o644))

	r, err := LoadReflection(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(88), r["gbuffer.vert"].PushConstantSize)
	assert.Equal(t, "compute", r["lighting.comp"].Stage)
}

func TestWatcherPublishesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "umbra.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644))

	// a single save can surface as several write events, some of them seeing a truncated file
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-w.Updates():
			if cfg.Log.Level == "debug" {
				return
			}
		case <-w.Errors():
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}
