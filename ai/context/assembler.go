// Package context assembles ranked retrieval results into a
// token-budgeted context string for LLM prompts.
package context

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/recall/ai/retrieval"
)

// Default token budget values.
const (
	DefaultMaxTokens = 3000
	DefaultTopK      = 10

	// multiTurnTopK is the wider candidate window used when packing a
	// compound multi-query context.
	multiTurnTopK = 15
	// multiTurnMaxSources caps how many distinct sources a multi-turn
	// context may draw from.
	multiTurnMaxSources = 8

	truncationMarker = "\n... [context truncated]"
)

// ScopeMetadataKey is the document metadata key inspected by scope
// filtering.
const ScopeMetadataKey = "scope"

// codeIndicators are substrings whose presence marks a chunk as likely
// containing code. A crude heuristic, but cheap and good enough for
// pre-filtering candidates.
var codeIndicators = []string{
	"func ", "def ", "class ", "import ", "return ",
	"{", "}", "=>", "();", ":=",
}

// Searcher is the retrieval capability the assembler depends on.
type Searcher interface {
	HybridSearch(ctx context.Context, opts *retrieval.SearchOptions) ([]*retrieval.SearchResult, error)
}

// TokenCounter estimates token count for a string.
type TokenCounter interface {
	CountTokens(text string) int
}

// SimpleTokenCounter provides a rough token estimation,
// approximately 4 characters per token for English text.
type SimpleTokenCounter struct{}

func (s *SimpleTokenCounter) CountTokens(text string) int {
	return len(text) / 4
}

// Assembler packs search results into prompt context. Retrieval is
// best-effort for the caller's generation path: a failed search
// degrades to an empty context string instead of propagating.
type Assembler struct {
	searcher     Searcher
	tokenCounter TokenCounter
	logger       *slog.Logger
	maxTokens    int
}

// NewAssembler creates a new context assembler with defaults.
func NewAssembler(searcher Searcher, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		searcher:     searcher,
		tokenCounter: &SimpleTokenCounter{},
		logger:       logger,
		maxTokens:    DefaultMaxTokens,
	}
}

// SetMaxTokens overrides the default token budget.
func (a *Assembler) SetMaxTokens(max int) {
	if max > 0 {
		a.maxTokens = max
	}
}

// BuildContext retrieves up to topK relevant chunks and packs them into
// a single string within the token budget. scopeFilter, when non-empty,
// keeps only results whose "scope" metadata matches. Returns the empty
// string when nothing was found, nothing fit, or retrieval failed.
func (a *Assembler) BuildContext(ctx context.Context, query, scopeFilter string, topK int) string {
	if topK <= 0 {
		topK = DefaultTopK
	}

	// Over-fetch so scope filtering still has topK candidates to
	// choose from.
	results := a.search(ctx, &retrieval.SearchOptions{
		Query:  query,
		Limit:  2 * topK,
		Logger: a.logger,
	})

	if scopeFilter != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Document.Metadata[ScopeMetadataKey] == scopeFilter {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > topK {
		results = results[:topK]
	}

	return a.pack(results, formatChunk)
}

// BuildConversationContext packs only chunks belonging to the given
// conversation.
func (a *Assembler) BuildConversationContext(ctx context.Context, sourceID, query string) string {
	results := a.search(ctx, &retrieval.SearchOptions{
		Query:  query,
		Limit:  2 * DefaultTopK,
		Logger: a.logger,
	})

	filtered := results[:0]
	for _, r := range results {
		if r.Document.SourceID == sourceID {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > DefaultTopK {
		filtered = filtered[:DefaultTopK]
	}

	return a.pack(filtered, formatChunk)
}

// BuildCodeContext biases the query toward code, keeps only chunks that
// look like code, and renders each as a fenced block.
func (a *Assembler) BuildCodeContext(ctx context.Context, query, language string) string {
	codeQuery := query + " code function implementation"
	if language != "" {
		codeQuery = query + " " + language + " code function implementation"
	}

	results := a.search(ctx, &retrieval.SearchOptions{
		Query:  codeQuery,
		Limit:  2 * DefaultTopK,
		Logger: a.logger,
	})

	filtered := results[:0]
	for _, r := range results {
		if looksLikeCode(r.Document.ChunkText) {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > DefaultTopK {
		filtered = filtered[:DefaultTopK]
	}

	return a.pack(filtered, func(r *retrieval.SearchResult) string {
		return fmt.Sprintf("[%.0f%% relevant | %s]\n```%s\n%s\n```\n\n",
			r.RelevanceScore*100, r.Document.SourceType, language, r.Document.ChunkText)
	})
}

// BuildMultiTurnContext searches once with all recent queries combined
// and packs results deduplicated by source.
func (a *Assembler) BuildMultiTurnContext(ctx context.Context, recentQueries []string, scopeFilter string) string {
	if len(recentQueries) == 0 {
		return ""
	}

	results := a.search(ctx, &retrieval.SearchOptions{
		Query:  strings.Join(recentQueries, " "),
		Limit:  multiTurnTopK,
		Logger: a.logger,
	})

	seen := make(map[string]bool)
	deduped := make([]*retrieval.SearchResult, 0, multiTurnMaxSources)
	for _, r := range results {
		if scopeFilter != "" && r.Document.Metadata[ScopeMetadataKey] != scopeFilter {
			continue
		}
		if seen[r.Document.SourceID] {
			continue
		}
		seen[r.Document.SourceID] = true
		deduped = append(deduped, r)
		if len(deduped) >= multiTurnMaxSources {
			break
		}
	}

	return a.pack(deduped, formatChunk)
}

// TruncateContext hard-truncates text to the character budget implied
// by maxTokens, appending a marker when anything was cut. Used wherever
// an assembled string may later be concatenated with other prompt
// material.
func TruncateContext(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + truncationMarker
}

func (a *Assembler) search(ctx context.Context, opts *retrieval.SearchOptions) []*retrieval.SearchResult {
	results, err := a.searcher.HybridSearch(ctx, opts)
	if err != nil {
		a.logger.WarnContext(ctx, "context retrieval failed, continuing without context",
			"error", err,
		)
		return nil
	}
	return results
}

// pack greedily appends formatted chunks until the next one would
// exceed the token budget. It never exceeds the budget even if that
// means packing fewer chunks than available.
func (a *Assembler) pack(results []*retrieval.SearchResult, format func(*retrieval.SearchResult) string) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	usedTokens := 0
	for _, r := range results {
		chunk := format(r)
		chunkTokens := a.tokenCounter.CountTokens(chunk)
		if usedTokens+chunkTokens > a.maxTokens {
			break
		}
		sb.WriteString(chunk)
		usedTokens += chunkTokens
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatChunk(r *retrieval.SearchResult) string {
	return fmt.Sprintf("[%.0f%% relevant | %s] %s\n\n",
		r.RelevanceScore*100, r.Document.SourceType, r.Document.ChunkText)
}

func looksLikeCode(text string) bool {
	for _, indicator := range codeIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}
