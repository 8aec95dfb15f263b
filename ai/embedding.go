package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/recall/ai/metrics"
)

// Sentinel error kinds for the embedding generator contract. Callers
// distinguish them with errors.Is: input errors are never retried,
// transport errors are retried with backoff, invalid responses mean the
// provider returned something that cannot be used as a vector.
var (
	ErrEmptyInput      = errors.New("empty input text")
	ErrTransport       = errors.New("embedding transport error")
	ErrInvalidResponse = errors.New("invalid embedding response")
)

const (
	// maxBatchSize bounds how many texts go into one provider call.
	maxBatchSize = 20

	// requestTimeout bounds a single provider call. The external API has
	// no enforced timeout of its own; without this a stuck connection
	// would block indefinitely.
	requestTimeout = 30 * time.Second

	// maxAttempts and retryBaseDelay define the transport-error retry
	// policy: 3 attempts with exponential backoff starting at 500ms.
	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the model identifier that produced the vectors.
	// Stored alongside every vector: vectors from different model
	// versions are not comparable.
	Model() string
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// NewEmbeddingService creates a new EmbeddingService for any
// OpenAI-compatible provider (openai, siliconflow, ollama, etc.).
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		// External providers rate-limit aggressively; two batch calls per
		// second keeps backfill jobs under typical limits.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for multiple texts. Large inputs are
// split into provider-sized chunks with a rate-limited pause between
// calls; the result order matches the input order.
func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyInput
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}

		chunk, err := s.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

// embedChunk performs one provider call with bounded retry on
// transport errors.
func (s *embeddingService) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryBaseDelay << (attempt - 2)
			slog.Warn("retrying embedding call",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			}
		}

		vectors, err := s.callProvider(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !errors.Is(err, ErrTransport) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *embeddingService) callProvider(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	})
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	metrics.EmbeddingRequests.WithLabelValues("ok").Inc()

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrInvalidResponse, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != s.dimensions {
			return nil, fmt.Errorf("%w: vector dimension %d, expected %d", ErrInvalidResponse, len(data.Embedding), s.dimensions)
		}
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) Model() string {
	return s.model
}
