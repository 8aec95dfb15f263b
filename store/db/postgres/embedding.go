package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

// UpsertEmbedding inserts or updates the embedding for one
// (document, model) pair.
func (d *DB) UpsertEmbedding(ctx context.Context, upsert *store.Embedding) (*store.Embedding, error) {
	stmt := `
		INSERT INTO embedding (document_id, vector, model, dimension, created_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (document_id, model)
		DO UPDATE SET
			vector = EXCLUDED.vector,
			dimension = EXCLUDED.dimension,
			created_ts = EXCLUDED.created_ts
		RETURNING id, created_ts
	`

	err := d.db.QueryRowContext(ctx, stmt,
		upsert.DocumentID,
		pgvector.NewVector(upsert.Vector),
		upsert.Model,
		upsert.Dimension,
		upsert.CreatedTs,
	).Scan(&upsert.ID, &upsert.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert embedding")
	}

	return upsert, nil
}

// GetEmbedding returns the most recently written embedding for the
// document, or nil when none is stored.
func (d *DB) GetEmbedding(ctx context.Context, documentID string) (*store.Embedding, error) {
	stmt := `
		SELECT id, document_id, vector, model, dimension, created_ts
		FROM embedding
		WHERE document_id = ` + placeholder(1) + `
		ORDER BY created_ts DESC, id DESC
		LIMIT 1
	`

	embedding, err := scanEmbedding(d.db.QueryRowContext(ctx, stmt, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return embedding, nil
}

// ListEmbeddings lists embeddings matching the find condition.
func (d *DB) ListEmbeddings(ctx context.Context, find *store.FindEmbedding) ([]*store.Embedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.DocumentID != nil {
		where, args = append(where, "document_id = "+placeholder(len(args)+1)), append(args, *find.DocumentID)
	}
	if find.Model != nil {
		where, args = append(where, "model = "+placeholder(len(args)+1)), append(args, *find.Model)
	}

	query := `
		SELECT id, document_id, vector, model, dimension, created_ts
		FROM embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list embeddings")
	}
	defer rows.Close()

	list := []*store.Embedding{}
	for rows.Next() {
		embedding, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, embedding)
	}
	return list, rows.Err()
}

// ListDocumentsWithVectors bulk-loads documents joined with their
// stored vectors. Without a model filter the most recent embedding per
// document wins, so each document appears at most once.
func (d *DB) ListDocumentsWithVectors(ctx context.Context, find *store.FindDocumentVector) ([]*store.DocumentWithVector, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.SourceType != nil {
		where, args = append(where, "d.source_type = "+placeholder(len(args)+1)), append(args, *find.SourceType)
	}
	if find.SourceID != nil {
		where, args = append(where, "d.source_id = "+placeholder(len(args)+1)), append(args, *find.SourceID)
	}
	if find.Model != nil {
		where, args = append(where, "e.model = "+placeholder(len(args)+1)), append(args, *find.Model)
	} else {
		where = append(where, `e.id = (
			SELECT e2.id FROM embedding e2
			WHERE e2.document_id = e.document_id
			ORDER BY e2.created_ts DESC, e2.id DESC
			LIMIT 1
		)`)
	}

	query := `
		SELECT d.id, d.source_type, d.source_id, d.chunk_text, d.chunk_index, d.metadata, d.created_ts,
			e.vector, e.dimension
		FROM document d
		JOIN embedding e ON e.document_id = d.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY d.created_ts DESC, d.chunk_index ASC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents with vectors")
	}
	defer rows.Close()

	list := []*store.DocumentWithVector{}
	for rows.Next() {
		var doc store.Document
		var metadata string
		var vector pgvector.Vector
		var dimension int
		if err := rows.Scan(
			&doc.ID,
			&doc.SourceType,
			&doc.SourceID,
			&doc.ChunkText,
			&doc.ChunkIndex,
			&metadata,
			&doc.CreatedTs,
			&vector,
			&dimension,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan document with vector")
		}

		m, err := store.DecodeMetadata(metadata)
		if err != nil {
			return nil, err
		}
		doc.Metadata = m

		slice := vector.Slice()
		if len(slice) != dimension {
			return nil, errors.Errorf("vector dimension mismatch for document %s: stored %d, declared %d",
				doc.ID, len(slice), dimension)
		}
		list = append(list, &store.DocumentWithVector{Document: &doc, Vector: slice})
	}
	return list, rows.Err()
}

func scanEmbedding(row rowScanner) (*store.Embedding, error) {
	var embedding store.Embedding
	var vector pgvector.Vector
	if err := row.Scan(
		&embedding.ID,
		&embedding.DocumentID,
		&vector,
		&embedding.Model,
		&embedding.Dimension,
		&embedding.CreatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan embedding")
	}

	embedding.Vector = vector.Slice()
	if len(embedding.Vector) != embedding.Dimension {
		return nil, errors.Errorf("vector dimension mismatch for document %s: stored %d, declared %d",
			embedding.DocumentID, len(embedding.Vector), embedding.Dimension)
	}
	return &embedding, nil
}
