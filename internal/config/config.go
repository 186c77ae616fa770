// Package config loads the YAML configuration file and applies STEVE_*
// environment overrides on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// PathsConfig locates persistent state.
type PathsConfig struct {
	// Database is the SQLite file holding documents, embeddings and the
	// keyword indexes. Empty means in-memory.
	Database string `yaml:"database" json:"database"`
}

// RetrievalConfig tunes search and chunking.
type RetrievalConfig struct {
	// TopK is the default number of search results.
	TopK int `yaml:"top_k" json:"top_k"`

	// Alpha is the semantic weight in the hybrid blend (0.0-1.0); the
	// keyword weight is 1-alpha.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects "openai" (any OpenAI-compatible endpoint) or
	// "static" (offline hash embedder, no network).
	Provider string `yaml:"provider" json:"provider"`

	BaseURL   string        `yaml:"base_url" json:"base_url"`
	APIKey    string        `yaml:"api_key" json:"-"`
	Model     string        `yaml:"model" json:"model"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the LRU capacity of the embedding cache; 0 disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// File is an optional log file path; empty logs to stderr only.
	File string `yaml:"file" json:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Database: filepath.Join("data", "steve.db"),
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			Alpha:        0.6,
			ChunkSize:    512,
			ChunkOverlap: 64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "openai",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			BatchSize: 128,
			Timeout:   120 * time.Second,
			CacheSize: 1000,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8756,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, layers it over defaults and applies
// environment overrides. A missing file is not an error; defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies STEVE_* environment variable overrides.
// Environment always wins over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STEVE_DATABASE"); v != "" {
		c.Paths.Database = v
	}
	if v := os.Getenv("STEVE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("STEVE_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.Alpha = f
		}
	}
	if v := os.Getenv("STEVE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("STEVE_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("STEVE_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("STEVE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("STEVE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("STEVE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("STEVE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STEVE_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha must be in [0,1], got %g", c.Retrieval.Alpha)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 {
		return fmt.Errorf("retrieval.chunk_overlap must not be negative, got %d", c.Retrieval.ChunkOverlap)
	}
	switch c.Embeddings.Provider {
	case "openai", "static":
	default:
		return fmt.Errorf("embeddings.provider must be openai or static, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}
