package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

// UpsertDocument inserts or replaces a document by id. The tsvector
// index column is generated from chunk_text in the same statement, so
// the row and its full-text entry are one atomic write.
func (d *DB) UpsertDocument(ctx context.Context, upsert *store.Document) (*store.Document, error) {
	metadata, err := store.EncodeMetadata(upsert.Metadata)
	if err != nil {
		return nil, err
	}

	stmt := `
		INSERT INTO document (id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts)
		VALUES (` + placeholders(7) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			source_type = EXCLUDED.source_type,
			source_id = EXCLUDED.source_id,
			chunk_text = EXCLUDED.chunk_text,
			chunk_index = EXCLUDED.chunk_index,
			metadata = EXCLUDED.metadata
		RETURNING created_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
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

	return upsert, nil
}

// GetDocument returns the document with the given id, or nil when absent.
func (d *DB) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	stmt := `
		SELECT id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts
		FROM document
		WHERE id = ` + placeholder(1)
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SourceType != nil {
		where, args = append(where, "source_type = "+placeholder(len(args)+1)), append(args, *find.SourceType)
	}
	if find.SourceID != nil {
		where, args = append(where, "source_id = "+placeholder(len(args)+1)), append(args, *find.SourceID)
	}

	query := `
		SELECT id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, chunk_index ASC
	`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
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

// DeleteDocument removes a document. Embedding rows are removed by the
// ON DELETE CASCADE constraint and the tsvector column disappears with
// the row, so the whole cascade is one atomic statement.
func (d *DB) DeleteDocument(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM document WHERE id = "+placeholder(1), id); err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	return nil
}

// FullTextSearch matches the stemmed query against the tsvector index
// and returns documents ranked best first by ts_rank.
func (d *DB) FullTextSearch(ctx context.Context, opts *store.FullTextSearchOptions) ([]*store.Document, error) {
	where := []string{"chunk_text_tsv @@ plainto_tsquery('english', $1)"}
	args := []any{opts.Query}

	if opts.SourceType != nil {
		where, args = append(where, "source_type = "+placeholder(len(args)+1)), append(args, *opts.SourceType)
	}

	query := `
		SELECT id, source_type, source_id, chunk_text, chunk_index, metadata, created_ts
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ts_rank(chunk_text_tsv, plainto_tsquery('english', $1)) DESC
		LIMIT ` + placeholder(len(args)+1)
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
