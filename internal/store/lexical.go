package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// queryTokenRegex keeps alphanumeric/underscore runs; everything else is
// stripped before the text reaches FTS5 MATCH, so user input can never
// smuggle in query syntax.
var queryTokenRegex = regexp.MustCompile(`\w+`)

// sanitizeQuery reduces raw query text to space-separated, case-folded
// word tokens. An empty result means "match nothing", never "match all".
func sanitizeQuery(query string) string {
	tokens := queryTokenRegex.FindAllString(strings.ToLower(query), -1)
	return strings.Join(tokens, " ")
}

// UpsertChunkEntry writes the chunk-level lexical entry for (documentID,
// chunkIndex). FTS5 virtual tables have no conflict clause, so the upsert
// is delete-then-insert on the key; chunk text changes across
// re-ingestion and duplicate rows would double-count terms.
func (s *Store) UpsertChunkEntry(ctx context.Context, documentID int64, chunkIndex int, text string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return upsertChunkEntryIn(ctx, s.db, documentID, chunkIndex, text)
}

func upsertChunkEntryIn(ctx context.Context, ex execer, documentID int64, chunkIndex int, text string) error {
	if _, err := ex.ExecContext(ctx,
		`DELETE FROM chunk_fts WHERE document_id = ? AND chunk_index = ?`, documentID, chunkIndex); err != nil {
		return fmt.Errorf("failed to clear chunk entry (%d,%d): %w", documentID, chunkIndex, err)
	}
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO chunk_fts(content, document_id, chunk_index) VALUES(?,?,?)`, text, documentID, chunkIndex); err != nil {
		return fmt.Errorf("failed to insert chunk entry (%d,%d): %w", documentID, chunkIndex, err)
	}
	return nil
}

// UpsertDocumentEntry replaces the document-level lexical entry for a
// document with its current full text.
func (s *Store) UpsertDocumentEntry(ctx context.Context, documentID int64, fullText string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM doc_fts WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("failed to clear document entry %d: %w", documentID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO doc_fts(content, document_id) VALUES(?,?)`, fullText, documentID); err != nil {
			return fmt.Errorf("failed to insert document entry %d: %w", documentID, err)
		}
		return nil
	})
}

// QueryLexical runs a BM25-ranked keyword query over the candidate
// documents. The chunk-level index is preferred for hybrid alignment;
// when it errors, the document-level index answers instead with chunk
// index 0, and when both fail the result is empty with
// LexicalUnavailable so callers can tell breakage from no-match.
//
// The native BM25 rank orders results best-first; the assigned score is
// 1/(1+rank) over the 0-based rank, which lands on the same bounded 0-1
// scale as cosine similarity for blending.
func (s *Store) QueryLexical(ctx context.Context, candidateDocIDs []int64, queryText string, topK int) ([]SearchHit, LexicalStatus, error) {
	if err := s.checkOpen(); err != nil {
		return nil, LexicalUnavailable, err
	}
	if len(candidateDocIDs) == 0 || topK <= 0 {
		return nil, LexicalOK, nil
	}
	safe := sanitizeQuery(queryText)
	if safe == "" {
		return nil, LexicalOK, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, LexicalUnavailable, err
	}

	args := append(int64Args(candidateDocIDs), safe, topK)

	// The FTS table keeps its own name: MATCH cannot target an alias.
	chunkQuery := fmt.Sprintf(`
		SELECT chunk_fts.document_id, chunk_fts.chunk_index, chunk_fts.content,
		       d.source, d.title, d.collection_id, d.meta
		FROM chunk_fts
		JOIN document d ON d.id = chunk_fts.document_id
		WHERE chunk_fts.document_id IN (%s) AND chunk_fts MATCH ?
		ORDER BY bm25(chunk_fts)
		LIMIT ?`, placeholders(len(candidateDocIDs)))

	hits, err := s.lexicalHits(ctx, chunkQuery, args)
	if err == nil {
		return hits, LexicalOK, nil
	}
	slog.Warn("chunk-level lexical query failed, falling back to document level",
		slog.String("error", err.Error()))

	docQuery := fmt.Sprintf(`
		SELECT doc_fts.document_id, 0 AS chunk_index, doc_fts.content,
		       d.source, d.title, d.collection_id, d.meta
		FROM doc_fts
		JOIN document d ON d.id = doc_fts.document_id
		WHERE doc_fts.document_id IN (%s) AND doc_fts MATCH ?
		ORDER BY bm25(doc_fts)
		LIMIT ?`, placeholders(len(candidateDocIDs)))

	hits, err = s.lexicalHits(ctx, docQuery, args)
	if err == nil {
		return hits, LexicalFellBack, nil
	}
	slog.Warn("document-level lexical query failed, lexical index unavailable",
		slog.String("error", err.Error()))
	return nil, LexicalUnavailable, nil
}

// lexicalHits executes one FTS query and assigns rank-derived scores.
func (s *Store) lexicalHits(ctx context.Context, query string, args []any) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			hit      SearchHit
			title    sql.NullString
			metaJSON sql.NullString
		)
		if err := rows.Scan(&hit.DocumentID, &hit.ChunkIndex, &hit.Text,
			&hit.Source, &title, &hit.CollectionID, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		hit.Title = title.String
		hit.Score = 1.0 / (1.0 + float64(len(hits)))
		if meta := unmarshalMeta(metaJSON, hit.DocumentID); meta != nil {
			hit.FilePath = meta.FilePath
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// LexicalChunkIndexes returns the sorted chunk_index set present in the
// chunk-level lexical index for one document.
func (s *Store) LexicalChunkIndexes(ctx context.Context, documentID int64) ([]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index FROM chunk_fts WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lexical chunks: %w", err)
	}
	defer rows.Close()

	var idxs []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan chunk index: %w", err)
		}
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}
