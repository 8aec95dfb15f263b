package store

import (
	"github.com/pkg/errors"
)

// Embedding represents the vector embedding of a document.
// Exactly one row exists per (document, model) pair; resaving the same
// pair overwrites the previous vector.
type Embedding struct {
	ID         int64
	DocumentID string
	Vector     []float32
	Model      string
	Dimension  int
	CreatedTs  int64
}

// FindEmbedding is the find condition for embeddings.
type FindEmbedding struct {
	DocumentID *string
	Model      *string
}

// DocumentWithVector pairs a document with its stored embedding vector.
// This is the bulk-load shape used by brute-force similarity scans.
type DocumentWithVector struct {
	Document *Document
	Vector   []float32
}

// FindDocumentVector is the find condition for bulk vector loads.
// SourceType bounds the scan size on the pure-semantic hot path;
// SourceID narrows to a single conversation.
type FindDocumentVector struct {
	SourceType *string
	SourceID   *string
	Model      *string
}

// Validate validates the embedding before it is written.
func (e *Embedding) Validate() error {
	if e.DocumentID == "" {
		return errors.New("embedding document id cannot be empty")
	}
	if e.Model == "" {
		return errors.New("embedding model cannot be empty")
	}
	if len(e.Vector) == 0 {
		return errors.New("embedding vector cannot be empty")
	}
	if e.Dimension != len(e.Vector) {
		return errors.Errorf("embedding dimension mismatch: declared %d, vector has %d", e.Dimension, len(e.Vector))
	}
	return nil
}
