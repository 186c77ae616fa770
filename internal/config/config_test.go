package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.6, cfg.Retrieval.Alpha)
	assert.Equal(t, 512, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 64, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 128, cfg.Embeddings.BatchSize)
	assert.Equal(t, 120*time.Second, cfg.Embeddings.Timeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Retrieval, cfg.Retrieval)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  top_k: 9
  alpha: 0.3
embeddings:
  provider: static
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, 0.3, cfg.Retrieval.Alpha)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 512, cfg.Retrieval.ChunkSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 9\n"), 0o644))

	t.Setenv("STEVE_TOP_K", "3")
	t.Setenv("STEVE_ALPHA", "0.9")
	t.Setenv("STEVE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 0.9, cfg.Retrieval.Alpha)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestAPIKeyFallsBackToOpenAIEnv(t *testing.T) {
	t.Setenv("STEVE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.Embeddings.APIKey)

	t.Setenv("STEVE_API_KEY", "sk-primary")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-primary", cfg.Embeddings.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"alpha above one", func(c *Config) { c.Retrieval.Alpha = 1.5 }},
		{"negative overlap", func(c *Config) { c.Retrieval.ChunkOverlap = -1 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"zero batch", func(c *Config) { c.Embeddings.BatchSize = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
