package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentValidate(t *testing.T) {
	valid := func() *Document {
		return &Document{
			ID:         "doc-1",
			SourceType: SourceTypeConversation,
			SourceID:   "conv-1",
			ChunkText:  "some text",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Document)
		errMsg string
	}{
		{"empty id", func(d *Document) { d.ID = "" }, "id cannot be empty"},
		{"empty source type", func(d *Document) { d.SourceType = "" }, "source type cannot be empty"},
		{"empty chunk text", func(d *Document) { d.ChunkText = "" }, "chunk text cannot be empty"},
		{"negative chunk index", func(d *Document) { d.ChunkIndex = -1 }, "chunk index cannot be negative"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := valid()
			tt.mutate(doc)
			err := doc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFullTextSearchOptionsValidate(t *testing.T) {
	opts := &FullTextSearchOptions{Query: "hello"}
	require.NoError(t, opts.Validate())
	assert.Equal(t, 50, opts.Limit, "Limit should be set to default value 50")

	opts = &FullTextSearchOptions{Query: ""}
	require.Error(t, opts.Validate())

	opts = &FullTextSearchOptions{Query: "hello", Limit: -1}
	require.Error(t, opts.Validate())

	opts = &FullTextSearchOptions{Query: "hello", Limit: 1001}
	require.Error(t, opts.Validate())
}

func TestEmbeddingValidate(t *testing.T) {
	valid := func() *Embedding {
		return &Embedding{
			DocumentID: "doc-1",
			Vector:     []float32{1, 2, 3},
			Model:      "test-model",
			Dimension:  3,
		}
	}

	require.NoError(t, valid().Validate())

	e := valid()
	e.Dimension = 4
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")

	e = valid()
	e.Vector = nil
	require.Error(t, e.Validate())

	e = valid()
	e.Model = ""
	require.Error(t, e.Validate())

	e = valid()
	e.DocumentID = ""
	require.Error(t, e.Validate())
}
