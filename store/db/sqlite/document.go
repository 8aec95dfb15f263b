package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

// UpsertDocument inserts or replaces a document by id. The row and its
// full-text index entry are written in one transaction so that no
// reader ever observes one without the other.
func (d *DB) UpsertDocument(ctx context.Context, upsert *store.Document) (*store.Document, error) {
	metadata, err := store.EncodeMetadata(upsert.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `INSERT INTO document (id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_type = excluded.source_type,
			source_id = excluded.source_id,
			chunk_text = excluded.chunk_text,
			chunk_index = excluded.chunk_index,
			metadata = excluded.metadata
		RETURNING created_ts`
	if err := tx.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.SourceType,
		upsert.SourceID,
		upsert.ChunkText,
		upsert.ChunkIndex,
		metadata,
		upsert.CreatedTs,
	).Scan(&upsert.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert document")
	}

	// Replace the full-text index entry for the same id.
	if _, err := tx.ExecContext(ctx, "DELETE FROM document_fts WHERE id = ?", upsert.ID); err != nil {
		return nil, errors.Wrap(err, "failed to clear full-text index entry")
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO document_fts (id, chunk_text) VALUES (?, ?)",
		upsert.ID, upsert.ChunkText,
	); err != nil {
		return nil, errors.Wrap(err, "failed to write full-text index entry")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit document upsert")
	}
	return upsert, nil
}

// GetDocument returns the document with the given id, or nil when absent.
func (d *DB) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	stmt := `SELECT id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts
		FROM document
		WHERE id = ?`
	doc, err := scanDocument(d.db.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// ListDocuments lists documents ordered by creation time descending.
func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SourceType != nil {
		where, args = append(where, "source_type = ?"), append(args, *find.SourceType)
	}
	if find.SourceID != nil {
		where, args = append(where, "source_id = ?"), append(args, *find.SourceID)
	}

	query := `SELECT id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, chunk_index ASC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET ?"
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	list := []*store.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// DeleteDocument removes a document together with its full-text index
// entry and all of its embeddings. Deleting an absent id is a no-op.
func (d *DB) DeleteDocument(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_fts WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete full-text index entry")
	}
	// The foreign key cascade covers this too; the explicit delete keeps
	// the cascade independent of the foreign_keys pragma.
	if _, err := tx.ExecContext(ctx, "DELETE FROM embedding WHERE document_id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete embeddings")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM document WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete document")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit document delete")
	}
	return nil
}

// FullTextSearch matches the stemmed query tokens against indexed chunk
// text and returns documents in the index's native relevance order
// (best first).
func (d *DB) FullTextSearch(ctx context.Context, opts *store.FullTextSearchOptions) ([]*store.Document, error) {
	match := buildMatchQuery(opts.Query)
	if match == "" {
		return []*store.Document{}, nil
	}

	where, args := []string{"document_fts MATCH ?"}, []any{match}
	if opts.SourceType != nil {
		where, args = append(where, "d.source_type = ?"), append(args, *opts.SourceType)
	}

	query := `SELECT d.id, d.source_type, d.source_id, d.chunk_text, d.chunk_index, d.metadata, d.created_ts
		FROM document_fts
		JOIN document d ON d.id = document_fts.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY rank
		LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run full-text search")
	}
	defer rows.Close()

	list := []*store.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*store.Document, error) {
	var doc store.Document
	var metadata string
	if err := row.Scan(
		&doc.ID,
		&doc.SourceType,
		&doc.SourceID,
		&doc.ChunkText,
		&doc.ChunkIndex,
		&metadata,
		&doc.CreatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan document")
	}

	m, err := store.DecodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	doc.Metadata = m
	return &doc, nil
}

// buildMatchQuery converts raw user input into a safe FTS5 MATCH
// expression: strips operator characters, lowercases, and ORs the
// remaining tokens so any stemmed term can hit.
func buildMatchQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '(', ')', '*', '^', ':', '{', '}', '-', ',', '.', ';', '!', '?':
			return ' '
		default:
			return r
		}
	}, query)

	tokens := strings.Fields(strings.ToLower(cleaned))
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		parts = append(parts, `"`+token+`"`)
	}
	return strings.Join(parts, " OR ")
}
