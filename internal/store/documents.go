package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// AddDocument inserts a document and its document-level lexical entry in
// one transaction. The caller provides already-extracted plain text;
// format parsing lives outside the core.
func (s *Store) AddDocument(ctx context.Context, collectionID int64, source, title, docType, content string, meta *DocumentMeta) (int64, error) {
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return 0, err
	}

	var docID int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO document(collection_id, source, title, type, content, meta) VALUES(?,?,?,?,?,?)`,
			collectionID, source, title, docType, content, metaJSON)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		docID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read document id: %w", err)
		}
		// Document-level lexical entry, the fallback granularity.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO doc_fts(content, document_id) VALUES(?,?)`, content, docID); err != nil {
			return fmt.Errorf("failed to index document text: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return docID, nil
}

// GetDocument fetches a document including its full text.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, collection_id, source, title, type, content, meta, created_at FROM document WHERE id = ?`, id)

	var (
		d        Document
		title    sql.NullString
		metaJSON sql.NullString
	)
	if err := row.Scan(&d.ID, &d.CollectionID, &d.Source, &title, &d.Type, &d.Content, &metaJSON, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	d.Title = title.String
	d.Meta = unmarshalMeta(metaJSON, id)
	return &d, nil
}

// ListDocuments returns the documents of one collection, newest first,
// without their full text.
func (s *Store) ListDocuments(ctx context.Context, collectionID int64) ([]*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, source, title, type, meta, created_at
		 FROM document WHERE collection_id = ?
		 ORDER BY created_at DESC, id DESC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	return scanDocumentList(rows)
}

// ListAllDocuments returns every document across collections, newest
// first, without full text.
func (s *Store) ListAllDocuments(ctx context.Context) ([]*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, source, title, type, meta, created_at
		 FROM document ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	return scanDocumentList(rows)
}

func scanDocumentList(rows *sql.Rows) ([]*Document, error) {
	var out []*Document
	for rows.Next() {
		var (
			d        Document
			title    sql.NullString
			metaJSON sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.CollectionID, &d.Source, &title, &d.Type, &metaJSON, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Title = title.String
		d.Meta = unmarshalMeta(metaJSON, d.ID)
		out = append(out, &d)
	}
	return out, rows.Err()
}

func marshalMeta(meta *DocumentMeta) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal document meta: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// unmarshalMeta parses stored metadata. A malformed blob degrades to nil
// with a warning rather than failing the read; the document itself is
// still usable.
func unmarshalMeta(metaJSON sql.NullString, docID int64) *DocumentMeta {
	if !metaJSON.Valid || metaJSON.String == "" {
		return nil
	}
	var meta DocumentMeta
	if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
		slog.Warn("malformed document meta, ignoring",
			slog.Int64("document_id", docID),
			slog.String("error", err.Error()))
		return nil
	}
	if meta == (DocumentMeta{}) {
		return nil
	}
	return &meta
}
