package store

import (
	"context"

	"github.com/hrygo/recall/internal/profile"
)

// Store provides database access to all raw objects.
// A single instance is constructed at startup and passed by reference
// into every component that needs storage; there is no package-level
// singleton.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate brings the schema up to the current version. It must run
// before any other store call; a migration failure is fatal.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) UpsertDocument(ctx context.Context, upsert *Document) (*Document, error) {
	if err := upsert.Validate(); err != nil {
		return nil, err
	}
	return s.driver.UpsertDocument(ctx, upsert)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.driver.GetDocument(ctx, id)
}

func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	return s.driver.ListDocuments(ctx, find)
}

// DeleteDocument removes a document, its full-text index entry and all
// of its embeddings in one atomic unit. Deleting an absent id is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.driver.DeleteDocument(ctx, id)
}

func (s *Store) FullTextSearch(ctx context.Context, opts *FullTextSearchOptions) ([]*Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.FullTextSearch(ctx, opts)
}

func (s *Store) UpsertEmbedding(ctx context.Context, upsert *Embedding) (*Embedding, error) {
	if err := upsert.Validate(); err != nil {
		return nil, err
	}
	return s.driver.UpsertEmbedding(ctx, upsert)
}

// GetEmbedding returns the most recently written embedding for the
// document, regardless of model. Returns nil when none is stored.
func (s *Store) GetEmbedding(ctx context.Context, documentID string) (*Embedding, error) {
	return s.driver.GetEmbedding(ctx, documentID)
}

func (s *Store) ListEmbeddings(ctx context.Context, find *FindEmbedding) ([]*Embedding, error) {
	return s.driver.ListEmbeddings(ctx, find)
}

// ListDocumentsWithVectors bulk-loads documents together with their
// stored vectors for brute-force similarity scans.
func (s *Store) ListDocumentsWithVectors(ctx context.Context, find *FindDocumentVector) ([]*DocumentWithVector, error) {
	return s.driver.ListDocumentsWithVectors(ctx, find)
}

// LoadVectorsForSource returns all stored vectors belonging to one
// source, in creation order. Used by the conversation similarity engine.
func (s *Store) LoadVectorsForSource(ctx context.Context, sourceID string) ([][]float32, error) {
	rows, err := s.driver.ListDocumentsWithVectors(ctx, &FindDocumentVector{SourceID: &sourceID})
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, 0, len(rows))
	for _, row := range rows {
		vectors = append(vectors, row.Vector)
	}
	return vectors, nil
}
