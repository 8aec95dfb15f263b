package context

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/ai/retrieval"
	"github.com/hrygo/recall/store"
)

// stubSearcher returns a fixed result set regardless of the query.
type stubSearcher struct {
	results []*retrieval.SearchResult
	err     error

	lastOpts *retrieval.SearchOptions
}

func (s *stubSearcher) HybridSearch(_ context.Context, opts *retrieval.SearchOptions) ([]*retrieval.SearchResult, error) {
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	results := s.results
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func result(id, sourceType, sourceID, text string, score float32, metadata map[string]string) *retrieval.SearchResult {
	return &retrieval.SearchResult{
		Document: &store.Document{
			ID:         id,
			SourceType: sourceType,
			SourceID:   sourceID,
			ChunkText:  text,
			Metadata:   metadata,
		},
		RelevanceScore: score,
	}
}

func TestBuildContextEmptyCorpus(t *testing.T) {
	a := NewAssembler(&stubSearcher{}, nil)
	assert.Equal(t, "", a.BuildContext(context.Background(), "anything", "", 10))
}

func TestBuildContextDegradesOnSearchFailure(t *testing.T) {
	a := NewAssembler(&stubSearcher{err: errors.New("store unavailable")}, nil)
	assert.Equal(t, "", a.BuildContext(context.Background(), "anything", "", 10))
}

func TestBuildContextIncludesRelevanceAndSource(t *testing.T) {
	searcher := &stubSearcher{results: []*retrieval.SearchResult{
		result("d1", "note", "s1", "the cache is invalidated hourly", 0.92, nil),
	}}
	a := NewAssembler(searcher, nil)

	out := a.BuildContext(context.Background(), "cache invalidation", "", 10)
	assert.Contains(t, out, "92% relevant")
	assert.Contains(t, out, "note")
	assert.Contains(t, out, "the cache is invalidated hourly")
}

func TestBuildContextScopeFilter(t *testing.T) {
	searcher := &stubSearcher{results: []*retrieval.SearchResult{
		result("d1", "note", "s1", "in-scope chunk", 0.9, map[string]string{"scope": "work"}),
		result("d2", "note", "s2", "out-of-scope chunk", 0.8, map[string]string{"scope": "personal"}),
	}}
	a := NewAssembler(searcher, nil)

	out := a.BuildContext(context.Background(), "chunk", "work", 10)
	assert.Contains(t, out, "in-scope chunk")
	assert.NotContains(t, out, "out-of-scope chunk")
}

func TestBuildContextNeverExceedsBudget(t *testing.T) {
	long := strings.Repeat("retrieval systems blend keyword and vector scores ", 50)
	var results []*retrieval.SearchResult
	for i := 0; i < 20; i++ {
		results = append(results, result(fmt.Sprintf("d%d", i), "note", fmt.Sprintf("s%d", i), long, 0.9, nil))
	}
	a := NewAssembler(&stubSearcher{results: results}, nil)
	a.SetMaxTokens(1500)

	out := a.BuildContext(context.Background(), "retrieval", "", 20)
	assert.NotEmpty(t, out)
	counter := &SimpleTokenCounter{}
	assert.LessOrEqual(t, counter.CountTokens(out), 1500)
}

func TestBuildContextOverFetches(t *testing.T) {
	searcher := &stubSearcher{}
	a := NewAssembler(searcher, nil)

	a.BuildContext(context.Background(), "anything", "", 7)
	require.NotNil(t, searcher.lastOpts)
	assert.Equal(t, 14, searcher.lastOpts.Limit)
}

func TestBuildConversationContextFiltersBySource(t *testing.T) {
	searcher := &stubSearcher{results: []*retrieval.SearchResult{
		result("d1", store.SourceTypeConversation, "conv-1", "from the target conversation", 0.9, nil),
		result("d2", store.SourceTypeConversation, "conv-2", "from another conversation", 0.8, nil),
	}}
	a := NewAssembler(searcher, nil)

	out := a.BuildConversationContext(context.Background(), "conv-1", "target")
	assert.Contains(t, out, "from the target conversation")
	assert.NotContains(t, out, "from another conversation")
}

func TestBuildCodeContextFiltersAndFences(t *testing.T) {
	searcher := &stubSearcher{results: []*retrieval.SearchResult{
		result("d1", "note", "s1", "func invalidate(cache *Cache) { cache.Clear() }", 0.9, nil),
		result("d2", "note", "s2", "prose about caches without any code at all", 0.8, nil),
	}}
	a := NewAssembler(searcher, nil)

	out := a.BuildCodeContext(context.Background(), "cache clearing", "go")
	assert.Contains(t, out, "```go")
	assert.Contains(t, out, "func invalidate")
	assert.NotContains(t, out, "prose about caches")
}

func TestBuildMultiTurnContextDedupesBySource(t *testing.T) {
	searcher := &stubSearcher{results: []*retrieval.SearchResult{
		result("d1", "note", "s1", "first chunk of source one", 0.9, nil),
		result("d2", "note", "s1", "second chunk of source one", 0.85, nil),
		result("d3", "note", "s2", "chunk of source two", 0.8, nil),
	}}
	a := NewAssembler(searcher, nil)

	out := a.BuildMultiTurnContext(context.Background(), []string{"first query", "second query"}, "")
	assert.Contains(t, out, "first chunk of source one")
	assert.NotContains(t, out, "second chunk of source one")
	assert.Contains(t, out, "chunk of source two")

	// All queries collapse into one compound search.
	assert.Equal(t, "first query second query", searcher.lastOpts.Query)
	assert.Equal(t, multiTurnTopK, searcher.lastOpts.Limit)
}

func TestBuildMultiTurnContextNoQueries(t *testing.T) {
	a := NewAssembler(&stubSearcher{}, nil)
	assert.Equal(t, "", a.BuildMultiTurnContext(context.Background(), nil, ""))
}

func TestTruncateContext(t *testing.T) {
	assert.Equal(t, "short", TruncateContext("short", 100))

	long := strings.Repeat("x", 500)
	truncated := TruncateContext(long, 100)
	assert.True(t, strings.HasSuffix(truncated, truncationMarker))
	assert.Len(t, truncated, 400+len(truncationMarker))

	assert.Equal(t, "", TruncateContext("anything", 0))
}
