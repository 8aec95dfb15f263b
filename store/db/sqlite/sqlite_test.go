package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	driver, err := NewDB(&profile.Profile{DSN: "file:" + t.TempDir() + "/recall_test.db"})
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close() })

	require.NoError(t, driver.Migrate(context.Background()))
	return driver.(*DB)
}

func testDocument(id, sourceType, sourceID, text string, chunkIndex int) *store.Document {
	return &store.Document{
		ID:         id,
		SourceType: sourceType,
		SourceID:   sourceID,
		ChunkText:  text,
		ChunkIndex: chunkIndex,
		CreatedTs:  time.Now().Unix(),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	// Migrate already ran once in newTestDB; a second run must be a no-op.
	require.NoError(t, db.Migrate(context.Background()))

	initialized, err := db.IsInitialized(context.Background())
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestUpsertAndGetDocument(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	doc := testDocument("doc-1", store.SourceTypeConversation, "conv-1", "hello retrieval world", 0)
	doc.Metadata = map[string]string{"scope": "general", "role": "assistant"}

	_, err := db.UpsertDocument(ctx, doc)
	require.NoError(t, err)

	got, err := db.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello retrieval world", got.ChunkText)
	assert.Equal(t, map[string]string{"scope": "general", "role": "assistant"}, got.Metadata)

	// Replacing by id updates text and the index entry.
	doc.ChunkText = "completely different content"
	_, err = db.UpsertDocument(ctx, doc)
	require.NoError(t, err)

	got, err = db.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "completely different content", got.ChunkText)

	missing, err := db.GetDocument(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListDocuments(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for i, id := range []string{"a", "b", "c"} {
		doc := testDocument(id, store.SourceTypeConversation, "conv-1", "chunk "+id, i)
		doc.CreatedTs = int64(100 + i)
		_, err := db.UpsertDocument(ctx, doc)
		require.NoError(t, err)
	}
	other := testDocument("d", "note", "note-1", "unrelated", 0)
	other.CreatedTs = 500
	_, err := db.UpsertDocument(ctx, other)
	require.NoError(t, err)

	sourceType := store.SourceTypeConversation
	list, err := db.ListDocuments(ctx, &store.FindDocument{SourceType: &sourceType})
	require.NoError(t, err)
	require.Len(t, list, 3)
	// Creation time descending.
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[2].ID)

	limit, offset := 1, 1
	page, err := db.ListDocuments(ctx, &store.FindDocument{SourceType: &sourceType, Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestFullTextSearchStemming(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpsertDocument(ctx, testDocument("cube", store.SourceTypeConversation, "conv-1", "rotating cube rendered with Three.js", 0))
	require.NoError(t, err)
	_, err = db.UpsertDocument(ctx, testDocument("auth", store.SourceTypeConversation, "conv-2", "REST API authentication with tokens", 0))
	require.NoError(t, err)

	// Porter stemming maps "rotation" and "rotating" to the same stem.
	results, err := db.FullTextSearch(ctx, &store.FullTextSearchOptions{Query: "cube rotation", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cube", results[0].ID)

	// Zero matches return an empty slice, not an error.
	results, err = db.FullTextSearch(ctx, &store.FullTextSearchOptions{Query: "quantum chromodynamics", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Operator characters in the query must not break the MATCH expression.
	_, err = db.FullTextSearch(ctx, &store.FullTextSearchOptions{Query: `"cube* (rotation:)"`, Limit: 10})
	require.NoError(t, err)
}

func TestFullTextSearchSourceTypeFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpsertDocument(ctx, testDocument("conv-doc", store.SourceTypeConversation, "conv-1", "shared keyword payload", 0))
	require.NoError(t, err)
	_, err = db.UpsertDocument(ctx, testDocument("note-doc", "note", "note-1", "shared keyword payload", 0))
	require.NoError(t, err)

	sourceType := "note"
	results, err := db.FullTextSearch(ctx, &store.FullTextSearchOptions{Query: "payload", Limit: 10, SourceType: &sourceType})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note-doc", results[0].ID)
}

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpsertDocument(ctx, testDocument("doc-1", store.SourceTypeConversation, "conv-1", "cascading delete target", 0))
	require.NoError(t, err)
	_, err = db.UpsertEmbedding(ctx, &store.Embedding{
		DocumentID: "doc-1",
		Vector:     []float32{0.1, 0.2, 0.3},
		Model:      "test-model",
		Dimension:  3,
		CreatedTs:  time.Now().Unix(),
	})
	require.NoError(t, err)

	require.NoError(t, db.DeleteDocument(ctx, "doc-1"))

	doc, err := db.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	embedding, err := db.GetEmbedding(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, embedding)

	results, err := db.FullTextSearch(ctx, &store.FullTextSearchOptions{Query: "cascading", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Deleting an absent id is silent.
	require.NoError(t, db.DeleteDocument(ctx, "doc-1"))
}

func TestEmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpsertDocument(ctx, testDocument("doc-1", store.SourceTypeConversation, "conv-1", "embedding round trip", 0))
	require.NoError(t, err)

	vector := []float32{0.25, -1.5, 3.75, 0}
	saved, err := db.UpsertEmbedding(ctx, &store.Embedding{
		DocumentID: "doc-1",
		Vector:     vector,
		Model:      "test-model",
		Dimension:  4,
		CreatedTs:  100,
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	got, err := db.GetEmbedding(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, vector, got.Vector)
	assert.Equal(t, 4, got.Dimension)
	assert.Equal(t, "test-model", got.Model)

	// Resaving the same (document, model) pair overwrites.
	_, err = db.UpsertEmbedding(ctx, &store.Embedding{
		DocumentID: "doc-1",
		Vector:     []float32{1, 1, 1, 1},
		Model:      "test-model",
		Dimension:  4,
		CreatedTs:  200,
	})
	require.NoError(t, err)

	list, err := db.ListEmbeddings(ctx, &store.FindEmbedding{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []float32{1, 1, 1, 1}, list[0].Vector)
}

func TestGetEmbeddingPrefersMostRecentModel(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpsertDocument(ctx, testDocument("doc-1", store.SourceTypeConversation, "conv-1", "model selection", 0))
	require.NoError(t, err)

	for i, model := range []string{"old-model", "new-model"} {
		_, err = db.UpsertEmbedding(ctx, &store.Embedding{
			DocumentID: "doc-1",
			Vector:     []float32{float32(i)},
			Model:      model,
			Dimension:  1,
			CreatedTs:  int64(100 + i),
		})
		require.NoError(t, err)
	}

	got, err := db.GetEmbedding(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new-model", got.Model)
}

func TestListDocumentsWithVectors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for _, tc := range []struct {
		id         string
		sourceType string
		sourceID   string
	}{
		{"c1", store.SourceTypeConversation, "conv-1"},
		{"c2", store.SourceTypeConversation, "conv-2"},
		{"n1", "note", "note-1"},
	} {
		_, err := db.UpsertDocument(ctx, testDocument(tc.id, tc.sourceType, tc.sourceID, "text of "+tc.id, 0))
		require.NoError(t, err)
		_, err = db.UpsertEmbedding(ctx, &store.Embedding{
			DocumentID: tc.id,
			Vector:     []float32{1, 2},
			Model:      "test-model",
			Dimension:  2,
			CreatedTs:  time.Now().Unix(),
		})
		require.NoError(t, err)
	}
	// A document with no embedding must not appear in bulk loads.
	_, err := db.UpsertDocument(ctx, testDocument("bare", store.SourceTypeConversation, "conv-3", "no vector", 0))
	require.NoError(t, err)

	sourceType := store.SourceTypeConversation
	rows, err := db.ListDocumentsWithVectors(ctx, &store.FindDocumentVector{SourceType: &sourceType})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, []float32{1, 2}, row.Vector)
		assert.Equal(t, store.SourceTypeConversation, row.Document.SourceType)
	}

	sourceID := "conv-2"
	rows, err = db.ListDocumentsWithVectors(ctx, &store.FindDocumentVector{SourceID: &sourceID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].Document.ID)
}

func TestListDocumentsWithVectorsPicksLatestModel(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.UpsertDocument(ctx, testDocument("doc-1", store.SourceTypeConversation, "conv-1", "two models", 0))
	require.NoError(t, err)
	for i, model := range []string{"old-model", "new-model"} {
		_, err = db.UpsertEmbedding(ctx, &store.Embedding{
			DocumentID: "doc-1",
			Vector:     []float32{float32(i)},
			Model:      model,
			Dimension:  1,
			CreatedTs:  int64(100 + i),
		})
		require.NoError(t, err)
	}

	rows, err := db.ListDocumentsWithVectors(ctx, &store.FindDocumentVector{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []float32{1}, rows[0].Vector)
}

func TestBlobCodec(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 3.14159}
	blob := float32ArrayToBLOB(vec)
	assert.Len(t, blob, len(vec)*4)

	got, err := blobToFloat32Array(blob, len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	// Misaligned blobs are rejected, never reinterpreted.
	_, err = blobToFloat32Array(blob[:len(blob)-1], len(vec))
	require.Error(t, err)
	_, err = blobToFloat32Array(blob, len(vec)+1)
	require.Error(t, err)
}
