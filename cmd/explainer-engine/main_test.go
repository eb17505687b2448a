// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/explainer-engine/internal/secrets"
	"github.com/pdiddy/explainer-engine/internal/storage"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

// resetConfig gives each test a fresh viper with defaults and env binding.
func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults()
	viper.SetEnvPrefix("EXPLAINER_ENGINE")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	loadedSecrets = secrets.Secrets{}
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetConfig(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPipelineConfig(), cfg)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	resetConfig(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "explainer-engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`graph:
  graph_dir: /data/graph
generation:
  model: claude-test
  timeout: 30s
  max_slides: 4
render:
  quality: h
`), 0o644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())
	t.Setenv("EXPLAINER_ENGINE_STORAGE_STORAGE_DIR", "/data/videos")

	loadedSecrets = secrets.Secrets{secrets.AnthropicAPIKey: "sk-from-file"}

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/data/graph", cfg.Graph.GraphDir)
	assert.Equal(t, 20, cfg.Graph.MaxResults, "unset keys keep defaults")
	assert.Equal(t, "claude-test", cfg.Generation.Model)
	assert.Equal(t, 30*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 4, cfg.Generation.MaxSlides)
	assert.Equal(t, "h", cfg.Render.Quality)
	assert.Equal(t, "/data/videos", cfg.Storage.StorageDir)
	assert.Equal(t, "sk-from-file", cfg.Generation.APIKey)
}

func TestLoadConfigInvalid(t *testing.T) {
	resetConfig(t)
	viper.Set("render.quality", "ultra")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Quality")
}

func sampleVideo() types.Video {
	return types.Video{
		ID:         "0b4c2a7e-5f7e-4a55-9d1e-3c1f4b2a9e10",
		Topic:      "Photosynthesis",
		Path:       "output/videos/videos/photosynthesis-1a2b3c4d/0b4c2a7e.mp4",
		Format:     "mp4",
		SizeBytes:  3 * 1024 * 1024,
		Checksum:   "abc123",
		Duration:   95500 * time.Millisecond,
		SlideCount: 6,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPrintVideo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printVideo(&buf, sampleVideo(), false))
	out := buf.String()
	assert.Contains(t, out, "Topic       Photosynthesis")
	assert.Contains(t, out, "Slides      6")
	assert.Contains(t, out, "Duration    1m36s")
	assert.Contains(t, out, "Size        3.0 MiB")

	buf.Reset()
	require.NoError(t, printVideo(&buf, sampleVideo(), true))
	var got types.Video
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleVideo(), got)
}

func TestFormatRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatRecords(&buf, nil, false))
	assert.Equal(t, "No videos stored.\n", buf.String())

	buf.Reset()
	recs := []storage.Record{{Query: "what is photosynthesis", Video: sampleVideo(), SavedAt: time.Now()}}
	require.NoError(t, formatRecords(&buf, recs, false))
	assert.Contains(t, buf.String(), "what is photosynthesis")
	assert.Contains(t, buf.String(), "1 videos")
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 GiB", humanBytes(2<<30))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "a long...", clip("a long   sentence here", 9))
}
