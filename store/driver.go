package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for storage drivers.
// Mutating operations are serialized by the driver (single-writer,
// multiple-reader discipline); each logical mutation is one atomic unit
// of work, including its full-text index entry.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate applies all pending schema migrations. Each step runs at
	// most once per database; a failure leaves already-applied steps in
	// place and must be treated as fatal by the caller.
	Migrate(ctx context.Context) error

	// Document operations.
	UpsertDocument(ctx context.Context, upsert *Document) (*Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error
	FullTextSearch(ctx context.Context, opts *FullTextSearchOptions) ([]*Document, error)

	// Embedding operations.
	UpsertEmbedding(ctx context.Context, upsert *Embedding) (*Embedding, error)
	GetEmbedding(ctx context.Context, documentID string) (*Embedding, error)
	ListEmbeddings(ctx context.Context, find *FindEmbedding) ([]*Embedding, error)
	ListDocumentsWithVectors(ctx context.Context, find *FindDocumentVector) ([]*DocumentWithVector, error)
}
