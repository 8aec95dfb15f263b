// Package retrieval implements hybrid keyword + semantic search over
// the document and embedding stores.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/recall/ai/metrics"
	"github.com/hrygo/recall/ai/vector"
	"github.com/hrygo/recall/store"
)

// Hybrid blend weights. The keyword component is a purely positional
// proxy for the full-text engine's rank: the underlying index exposes
// result order but not a comparable score, so position stands in for
// it. Known weakness, kept deliberately.
const (
	semanticWeight = 0.6
	keywordWeight  = 0.4

	// keywordCandidateLimit bounds the keyword candidate set fed into
	// the semantic blend.
	keywordCandidateLimit = 50
)

// Embedder is the slice of the embedding service the engine needs.
// A local interface keeps the package free of a dependency cycle with
// the ai root package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// SearchResult is an ephemeral scored document. The relevance score is
// computed per query and never written back to storage.
type SearchResult struct {
	Document       *store.Document
	RelevanceScore float32
}

// SearchOptions are the options for a hybrid or semantic search.
type SearchOptions struct {
	Query      string
	Limit      int // top-K of the final ranked list
	SourceType *string
	Logger     *slog.Logger
	RequestID  string
}

// Validate validates the SearchOptions and applies defaults.
func (o *SearchOptions) Validate() error {
	if o.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(o.Query) > 1000 {
		return fmt.Errorf("query too long: %d characters (max 1000)", len(o.Query))
	}
	if o.Limit < 0 {
		return fmt.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.RequestID == "" {
		o.RequestID = uuid.NewString()
	}
	return nil
}

// Engine fuses full-text hits with vector similarity into one ranked
// list. It is stateless over store snapshots taken at call time;
// nothing is cached across calls.
type Engine struct {
	store    *store.Store
	embedder Embedder
}

// NewEngine creates a new search engine.
func NewEngine(st *store.Store, embedder Embedder) *Engine {
	return &Engine{
		store:    st,
		embedder: embedder,
	}
}

// HybridSearch runs keyword retrieval first and blends every keyword
// candidate's vector similarity into the final score. When the query
// matches no keywords at all it falls back to pure semantic search so
// paraphrased queries still retrieve.
func (e *Engine) HybridSearch(ctx context.Context, opts *SearchOptions) ([]*SearchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	keywordHits, err := e.store.FullTextSearch(ctx, &store.FullTextSearchOptions{
		Query:      opts.Query,
		Limit:      keywordCandidateLimit,
		SourceType: opts.SourceType,
	})
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}

	if len(keywordHits) == 0 {
		opts.Logger.DebugContext(ctx, "no keyword hits, falling back to semantic search",
			"request_id", opts.RequestID,
		)
		return e.semanticSearch(ctx, opts)
	}

	metrics.SearchTotal.WithLabelValues("hybrid").Inc()

	queryVector, err := e.embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	total := len(keywordHits)
	results := make([]*SearchResult, 0, total)
	dropped := 0
	for i, doc := range keywordHits {
		embedding, err := e.store.GetEmbedding(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load embedding for %s: %w", doc.ID, err)
		}
		if embedding == nil {
			// No stored vector means no semantic component; the candidate
			// is dropped from the blend entirely.
			dropped++
			continue
		}

		semanticScore := vector.CosineSimilarity(queryVector, embedding.Vector)
		keywordScore := float32(total-i) / float32(total)
		results = append(results, &SearchResult{
			Document:       doc,
			RelevanceScore: semanticWeight*semanticScore + keywordWeight*keywordScore,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	opts.Logger.InfoContext(ctx, "hybrid search completed",
		"request_id", opts.RequestID,
		"keyword_candidates", total,
		"dropped_without_embedding", dropped,
		"result_count", len(results),
	)
	return results, nil
}

// SemanticSearch runs a pure vector top-K over the whole filtered corpus.
func (e *Engine) SemanticSearch(ctx context.Context, opts *SearchOptions) ([]*SearchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return e.semanticSearch(ctx, opts)
}

func (e *Engine) semanticSearch(ctx context.Context, opts *SearchOptions) ([]*SearchResult, error) {
	metrics.SearchTotal.WithLabelValues("semantic").Inc()

	queryVector, err := e.embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := e.store.ListDocumentsWithVectors(ctx, &store.FindDocumentVector{
		SourceType: opts.SourceType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus vectors: %w", err)
	}

	candidates := make([]vector.Candidate, 0, len(rows))
	byID := make(map[string]*store.Document, len(rows))
	for _, row := range rows {
		candidates = append(candidates, vector.Candidate{ID: row.Document.ID, Vector: row.Vector})
		byID[row.Document.ID] = row.Document
	}

	results := make([]*SearchResult, 0, opts.Limit)
	for _, scored := range vector.TopK(queryVector, candidates, opts.Limit) {
		results = append(results, &SearchResult{
			Document:       byID[scored.ID],
			RelevanceScore: scored.Score,
		})
	}

	opts.Logger.InfoContext(ctx, "semantic search completed",
		"request_id", opts.RequestID,
		"corpus_size", len(rows),
		"result_count", len(results),
	)
	return results, nil
}
