package ai

import (
	"errors"

	"github.com/hrygo/recall/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	Enabled   bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.AIEmbeddingProvider,
		Model:      p.AIEmbeddingModel,
		APIKey:     p.AIEmbeddingAPIKey,
		BaseURL:    p.AIEmbeddingBaseURL,
		Dimensions: p.AIEmbeddingDimensions,
	}

	return cfg
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	if c.Embedding.APIKey == "" && c.Embedding.Provider != "ollama" {
		return errors.New("embedding api key is required")
	}
	return nil
}
