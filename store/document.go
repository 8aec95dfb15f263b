package store

import (
	"github.com/pkg/errors"
)

// SourceTypeConversation is the source type for chat-derived documents.
// Other source types (e.g. imported files) use their own identifiers;
// the store treats the value as an opaque grouping key.
const SourceTypeConversation = "conversation"

// Document represents a stored text chunk, the atomic unit of retrieval.
type Document struct {
	ID         string
	SourceType string
	SourceID   string
	ChunkText  string
	ChunkIndex int
	Metadata   map[string]string
	CreatedTs  int64
}

// FindDocument is the find condition for documents.
type FindDocument struct {
	ID         *string
	SourceType *string
	SourceID   *string
	Limit      *int
	Offset     *int
}

// FullTextSearchOptions represents the options for a keyword search
// against the full-text index.
type FullTextSearchOptions struct {
	Query      string
	Limit      int
	SourceType *string
}

// Validate validates the FullTextSearchOptions.
func (o *FullTextSearchOptions) Validate() error {
	if o.Query == "" {
		return errors.New("query cannot be empty")
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 50 // Default limit
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large: %d (max 1000)", o.Limit)
	}
	return nil
}

// Validate validates the document before it is written.
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.New("document id cannot be empty")
	}
	if d.SourceType == "" {
		return errors.New("document source type cannot be empty")
	}
	if d.ChunkText == "" {
		return errors.New("document chunk text cannot be empty")
	}
	if d.ChunkIndex < 0 {
		return errors.Errorf("chunk index cannot be negative: %d", d.ChunkIndex)
	}
	return nil
}
