package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkEmbedding pairs one chunk's text with its embedding vector for a
// transactional index write.
type ChunkEmbedding struct {
	Text   string
	Vector []float32
}

// ReplaceDocumentIndex rewrites both per-chunk indexes of a document in a
// single transaction: for every chunk the embedding row and the chunk
// lexical entry are upserted on the shared (document_id, chunk_index)
// key, then leftover entries from a previous, longer chunking are
// removed. Either both indexes reflect the new chunk set or neither does.
func (s *Store) ReplaceDocumentIndex(ctx context.Context, documentID int64, chunks []ChunkEmbedding, model string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i, c := range chunks {
			if err := upsertEmbeddingIn(ctx, tx, documentID, i, c.Vector, c.Text, model); err != nil {
				return err
			}
			if err := upsertChunkEntryIn(ctx, tx, documentID, i, c.Text); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embedding WHERE document_id = ? AND chunk_index >= ?`,
			documentID, len(chunks)); err != nil {
			return fmt.Errorf("failed to trim stale embeddings for document %d: %w", documentID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunk_fts WHERE document_id = ? AND chunk_index >= ?`,
			documentID, len(chunks)); err != nil {
			return fmt.Errorf("failed to trim stale chunk entries for document %d: %w", documentID, err)
		}
		return nil
	})
}

// DeleteDocument removes a document and every derived record: embeddings,
// chunk-level and document-level lexical entries, then the document row.
// Deleting an unknown id is a no-op, so retries after partial failures
// converge instead of erroring.
func (s *Store) DeleteDocument(ctx context.Context, documentID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteDocumentIn(ctx, tx, documentID)
	})
}

func deleteDocumentIn(ctx context.Context, tx *sql.Tx, documentID int64) error {
	steps := []struct {
		what  string
		query string
	}{
		{"embeddings", `DELETE FROM embedding WHERE document_id = ?`},
		{"chunk entries", `DELETE FROM chunk_fts WHERE document_id = ?`},
		{"document entry", `DELETE FROM doc_fts WHERE document_id = ?`},
		{"document", `DELETE FROM document WHERE id = ?`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, documentID); err != nil {
			return fmt.Errorf("failed to delete %s for document %d: %w", step.what, documentID, err)
		}
	}
	return nil
}

// DeleteCollection removes a collection, its documents and all their
// index entries in one transaction. Unknown ids are a no-op.
func (s *Store) DeleteCollection(ctx context.Context, collectionID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM document WHERE collection_id = ?`, collectionID)
		if err != nil {
			return fmt.Errorf("failed to list documents of collection %d: %w", collectionID, err)
		}
		var docIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan document id: %w", err)
			}
			docIDs = append(docIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range docIDs {
			if err := deleteDocumentIn(ctx, tx, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM collection WHERE id = ?`, collectionID); err != nil {
			return fmt.Errorf("failed to delete collection %d: %w", collectionID, err)
		}
		return nil
	})
}
