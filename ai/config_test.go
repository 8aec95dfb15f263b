package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	p := &profile.Profile{
		AIEmbeddingProvider:   "siliconflow",
		AIEmbeddingModel:      "BAAI/bge-m3",
		AIEmbeddingAPIKey:     "sk-test",
		AIEmbeddingBaseURL:    "https://api.siliconflow.cn/v1",
		AIEmbeddingDimensions: 1024,
	}

	cfg := NewConfigFromProfile(p)
	require.True(t, cfg.Enabled)
	assert.Equal(t, "BAAI/bge-m3", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			"disabled needs nothing",
			Config{Enabled: false},
			false,
		},
		{
			"missing model",
			Config{Enabled: true, Embedding: EmbeddingConfig{Dimensions: 3, APIKey: "k"}},
			true,
		},
		{
			"missing dimensions",
			Config{Enabled: true, Embedding: EmbeddingConfig{Model: "m", APIKey: "k"}},
			true,
		},
		{
			"missing api key",
			Config{Enabled: true, Embedding: EmbeddingConfig{Model: "m", Dimensions: 3, Provider: "openai"}},
			true,
		},
		{
			"ollama needs no api key",
			Config{Enabled: true, Embedding: EmbeddingConfig{Model: "m", Dimensions: 3, Provider: "ollama"}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
