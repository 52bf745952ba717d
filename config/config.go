// Package config loads engine configuration from a YAML file and
// RECALL_-prefixed environment variables. Everything is explicit and
// passed at construction time; there is no process-wide provider
// state. The embedding provider "auto" selection lives in NewEmbedder,
// a plain constructor helper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/spf13/viper"

	"github.com/becomeliminal/recall-go/engine"
	"github.com/becomeliminal/recall-go/memory"
	"github.com/becomeliminal/recall-go/memory/embedder"
	"github.com/becomeliminal/recall-go/memory/embedder/mock"
	"github.com/becomeliminal/recall-go/memory/embedder/openai"
)

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "auto", "openai", "mock", or "none".
	// "auto" picks openai when an API key is available and otherwise
	// leaves the engine in keyword mode.
	Provider string `yaml:"provider" mapstructure:"provider"`

	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`

	// CacheEntries bounds the in-process embedding memoization cache.
	CacheEntries int64 `yaml:"cache_entries" mapstructure:"cache_entries"`
}

// Config is the full engine configuration.
type Config struct {
	Profile       string          `yaml:"profile" mapstructure:"profile"`
	DataDir       string          `yaml:"data_dir" mapstructure:"data_dir"`
	Capacity      int             `yaml:"capacity" mapstructure:"capacity"`
	MaxResults    int             `yaml:"max_results" mapstructure:"max_results"`
	MinSimilarity float64         `yaml:"min_similarity" mapstructure:"min_similarity"`
	RecencyBoost  float64         `yaml:"recency_boost" mapstructure:"recency_boost"`
	ScanLimit     int             `yaml:"scan_limit" mapstructure:"scan_limit"`
	Embedding     EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
}

// Default returns the configuration defaults.
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		DataDir:       defaultDataDir(),
		Capacity:      ec.Capacity,
		MaxResults:    ec.MaxResults,
		MinSimilarity: ec.MinSimilarity,
		RecencyBoost:  ec.RecencyBoost,
		ScanLimit:     ec.ScanLimit,
		Embedding: EmbeddingConfig{
			Provider:     "auto",
			CacheEntries: 10000,
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "recall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".recall")
}

// Load reads config.yaml from the working directory or the user config
// directory, then applies RECALL_* environment overrides. A missing
// file is fine; defaults apply.
func Load() (*Config, error) {
	cfg := Default()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "recall"))
	}
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(filepath.Join(home, ".config", "recall"))

	viper.SetEnvPrefix("RECALL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// EngineConfig projects the file/env configuration onto the engine's
// knobs.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Profile:       c.Profile,
		Capacity:      c.Capacity,
		MaxResults:    c.MaxResults,
		MinSimilarity: c.MinSimilarity,
		RecencyBoost:  c.RecencyBoost,
		ScanLimit:     c.ScanLimit,
	}
}

// StorePath returns the SQLite database path for the configured
// profile, creating the data directory on the way.
func (c *Config) StorePath() (string, error) {
	dir := filepath.Join(c.DataDir, "profiles", c.Profile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	return filepath.Join(dir, "memory.db"), nil
}

// NewEmbedder builds the configured embedding provider, wrapped in the
// memoization cache. It returns (nil, nil) when the configuration
// resolves to no provider at all, which puts the engine in keyword
// mode — a valid degraded setup, not an error.
func NewEmbedder(c *Config) (memory.Embedder, error) {
	apiKey := c.Embedding.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	var inner memory.Embedder
	switch c.Embedding.Provider {
	case "none":
		return nil, nil
	case "mock":
		inner = mock.New(c.Embedding.Dimensions)
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("embedding provider %q requires an api key", c.Embedding.Provider)
		}
		inner = newOpenAI(c.Embedding.Model, apiKey)
	case "", "auto":
		if apiKey == "" {
			return nil, nil
		}
		inner = newOpenAI(c.Embedding.Model, apiKey)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}

	return embedder.NewCached(inner, c.Embedding.CacheEntries)
}

func newOpenAI(model, apiKey string) memory.Embedder {
	return openai.New(func(o *openai.Options) {
		if model != "" {
			o.Model = openaisdk.EmbeddingModel(model)
		}
		o.APIKey = apiKey
	})
}
