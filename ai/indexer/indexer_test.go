package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store"
	"github.com/hrygo/recall/store/db/sqlite"
)

type stubEmbedder struct {
	mu       sync.Mutex
	calls    [][]string
	failText string // EmbedBatch fails if any input equals this
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls = append(s.calls, texts)
	s.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if s.failText != "" && text == s.failText {
			return nil, errors.New("provider rejected input")
		}
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

func (s *stubEmbedder) Model() string   { return "stub-embedding-model" }
func (s *stubEmbedder) Dimensions() int { return 2 }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	p := &profile.Profile{Driver: "sqlite", DSN: "file:" + t.TempDir() + "/recall_test.db"}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	return store.New(driver, p)
}

func TestIndexPersistsDocumentsAndEmbeddings(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	embedder := &stubEmbedder{}

	ix := New(st, embedder, 2, nil)
	err := ix.Index(ctx, []*Item{
		{SourceType: "note", SourceID: "n-1", Text: "first chunk", ChunkIndex: 0},
		{SourceType: "note", SourceID: "n-1", Text: "second chunk", ChunkIndex: 1},
	})
	require.NoError(t, err)

	docs, err := st.ListDocuments(ctx, &store.FindDocument{})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	for _, doc := range docs {
		assert.NotEmpty(t, doc.ID)
		emb, err := st.GetEmbedding(ctx, doc.ID)
		require.NoError(t, err)
		require.NotNil(t, emb)
		assert.Equal(t, "stub-embedding-model", emb.Model)
	}
}

func TestIndexBatchesByTwenty(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	embedder := &stubEmbedder{}

	items := make([]*Item, 45)
	for i := range items {
		items[i] = &Item{
			SourceType: "note",
			SourceID:   fmt.Sprintf("n-%d", i),
			Text:       fmt.Sprintf("chunk number %d", i),
		}
	}

	ix := New(st, embedder, 1, nil)
	require.NoError(t, ix.Index(ctx, items))

	embedder.mu.Lock()
	defer embedder.mu.Unlock()
	require.Len(t, embedder.calls, 3)
	for _, call := range embedder.calls {
		assert.LessOrEqual(t, len(call), 20)
	}
}

func TestIndexSkipsFailedBatchAndContinues(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	// First batch (20 items) contains the poison text and fails whole;
	// the second batch still indexes.
	embedder := &stubEmbedder{failText: "poison"}

	items := make([]*Item, 21)
	for i := range items {
		text := fmt.Sprintf("chunk %d", i)
		if i == 0 {
			text = "poison"
		}
		items[i] = &Item{SourceType: "note", SourceID: fmt.Sprintf("n-%d", i), Text: text}
	}

	ix := New(st, embedder, 1, nil)
	require.NoError(t, ix.Index(ctx, items))

	docs, err := st.ListDocuments(ctx, &store.FindDocument{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIndexConversationSkipsEmptyMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	ix := New(st, &stubEmbedder{}, 1, nil)
	err := ix.IndexConversation(ctx, "conv-1", []string{"hello", "", "world"})
	require.NoError(t, err)

	sourceID := "conv-1"
	docs, err := st.ListDocuments(ctx, &store.FindDocument{SourceID: &sourceID})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, store.SourceTypeConversation, doc.SourceType)
	}
}

func TestIndexHonorsCancellation(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := New(st, &stubEmbedder{}, 1, nil)
	items := make([]*Item, 40)
	for i := range items {
		items[i] = &Item{SourceType: "note", SourceID: "n", Text: fmt.Sprintf("chunk %d", i)}
	}

	err := ix.Index(ctx, items)
	assert.ErrorIs(t, err, context.Canceled)
}
