package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible protocol)
	// All providers (openai, siliconflow, ollama) use the same config.
	AIEmbeddingProvider   string // Provider identifier: openai, siliconflow, ollama
	AIEmbeddingModel      string // Model name: text-embedding-3-small, BAAI/bge-m3, etc.
	AIEmbeddingAPIKey     string // Embedding API key
	AIEmbeddingBaseURL    string // Embedding base URL (optional, has default per provider)
	AIEmbeddingDimensions int    // Vector dimension declared by the model

	// Other configurations
	Mode        string
	Addr        string
	Port        int
	UNIXSock    string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string
	AIEnabled   bool
}

// Provider default configurations for embedding generation.
// Used when the base URL or model is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL    string
	Model      string
	Dimensions int
}{
	"openai": {
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	},
	"siliconflow": {
		BaseURL:    "https://api.siliconflow.cn/v1",
		Model:      "BAAI/bge-m3",
		Dimensions: 1024,
	},
	"ollama": {
		BaseURL:    "http://localhost:11434/v1",
		Model:      "nomic-embed-text",
		Dimensions: 768,
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the embedding API key is configured.
// Without it the server still serves keyword search, but semantic and
// hybrid retrieval are disabled.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEmbeddingAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.AIEmbeddingProvider = getEnvOrDefault("RECALL_AI_EMBEDDING_PROVIDER", "openai")
	p.AIEmbeddingAPIKey = getEnvOrDefault("RECALL_AI_EMBEDDING_API_KEY", "")
	p.AIEmbeddingBaseURL = getEnvOrDefault("RECALL_AI_EMBEDDING_BASE_URL", "")
	p.AIEmbeddingModel = getEnvOrDefault("RECALL_AI_EMBEDDING_MODEL", "")
	p.AIEmbeddingDimensions = getEnvOrDefaultInt("RECALL_AI_EMBEDDING_DIMENSIONS", 0)

	// AI is enabled if API key is configured
	p.AIEnabled = p.AIEmbeddingAPIKey != ""

	// Validate and apply provider defaults if not explicitly set
	if p.AIEmbeddingProvider != "" {
		if _, ok := embeddingProviderDefaults[p.AIEmbeddingProvider]; !ok {
			slog.Warn("Unknown embedding provider, using default: openai", "provider", p.AIEmbeddingProvider)
			p.AIEmbeddingProvider = "openai"
		}
	}
	if defaults, ok := embeddingProviderDefaults[p.AIEmbeddingProvider]; ok {
		if p.AIEmbeddingBaseURL == "" {
			p.AIEmbeddingBaseURL = defaults.BaseURL
		}
		if p.AIEmbeddingModel == "" {
			p.AIEmbeddingModel = defaults.Model
		}
		if p.AIEmbeddingDimensions == 0 {
			p.AIEmbeddingDimensions = defaults.Dimensions
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "recall")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/recall"
		}
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	if p.Driver == "sqlite" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			dbFile := fmt.Sprintf("recall_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
