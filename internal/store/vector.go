package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// normTolerance decides whether a stored vector counts as unit-length or
// zero. A strict floating-point equality here would misclassify vectors
// that round-trip through float32 serialization, so the comparison uses a
// small band instead.
const normTolerance = 1e-6

// execer abstracts *sql.DB and *sql.Tx so upserts can run standalone or
// inside a document-level transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertEmbedding writes one embedding record keyed by (documentID,
// chunkIndex), replacing any previous record for that key. The vector is
// normalized to unit length before persisting; a zero vector is stored
// as-is with the normalized flag off.
func (s *Store) UpsertEmbedding(ctx context.Context, documentID int64, chunkIndex int, vector []float32, text, model string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return upsertEmbeddingIn(ctx, s.db, documentID, chunkIndex, vector, text, model)
}

func upsertEmbeddingIn(ctx context.Context, ex execer, documentID int64, chunkIndex int, vector []float32, text, model string) error {
	norm := vectorNorm(vector)
	isNormalized := 0
	stored := vector
	if norm > 0 {
		stored = make([]float32, len(vector))
		for i, v := range vector {
			stored[i] = float32(float64(v) / norm)
		}
		isNormalized = 1
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO embedding(document_id, chunk_index, vector, text, model, dim, is_normalized)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(document_id, chunk_index) DO UPDATE SET
			vector = excluded.vector,
			text = excluded.text,
			model = excluded.model,
			dim = excluded.dim,
			is_normalized = excluded.is_normalized`,
		documentID, chunkIndex, encodeVector(stored), text, model, len(vector), isNormalized)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding (%d,%d): %w", documentID, chunkIndex, err)
	}
	return nil
}

// QueryVectors runs a brute-force cosine similarity scan over the
// embeddings of the candidate documents and returns the topK hits,
// descending by similarity with retrieval order breaking ties.
//
// Records whose dimensionality differs from the query vector are skipped,
// not errored: they are expected leftovers of an embedding model change.
// The scan is linear by design; the corpora this serves are small and an
// approximate index is out of scope.
func (s *Store) QueryVectors(ctx context.Context, candidateDocIDs []int64, queryVec []float32, topK int) ([]SearchHit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(candidateDocIDs) == 0 || len(queryVec) == 0 || topK <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT e.document_id, e.chunk_index, e.vector, e.text, e.is_normalized,
		       d.source, d.title, d.collection_id, d.meta
		FROM embedding e
		JOIN document d ON d.id = e.document_id
		WHERE e.document_id IN (%s)
		ORDER BY e.document_id, e.chunk_index`,
		placeholders(len(candidateDocIDs)))

	rows, err := s.db.QueryContext(ctx, query, int64Args(candidateDocIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	queryNorm := vectorNorm(queryVec)
	normalizedQuery := queryVec
	if queryNorm > 0 {
		normalizedQuery = make([]float32, len(queryVec))
		for i, v := range queryVec {
			normalizedQuery[i] = float32(float64(v) / queryNorm)
		}
	}

	var hits []SearchHit
	for rows.Next() {
		var (
			hit          SearchHit
			blob         []byte
			isNormalized int
			title        sql.NullString
			metaJSON     sql.NullString
		)
		if err := rows.Scan(&hit.DocumentID, &hit.ChunkIndex, &blob, &hit.Text, &isNormalized,
			&hit.Source, &title, &hit.CollectionID, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		stored := decodeVector(blob)
		if len(stored) != len(queryVec) {
			// Stale model dimension; skip rather than coerce.
			continue
		}

		storedNorm := vectorNorm(stored)
		var sim float64
		if isUnitOrZero(storedNorm) {
			// Stored vectors are normalized on write, so cosine reduces to
			// a dot product against the normalized query.
			sim = dot(normalizedQuery, stored)
		} else {
			// Legacy unnormalized row: full cosine.
			denom := queryNorm * storedNorm
			if denom != 0 {
				sim = dot(queryVec, stored) / denom
			}
		}

		hit.Title = title.String
		hit.Score = sim
		if meta := unmarshalMeta(metaJSON, hit.DocumentID); meta != nil {
			hit.FilePath = meta.FilePath
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// EmbeddingChunkIndexes returns the sorted chunk_index set stored in the
// vector index for one document.
func (s *Store) EmbeddingChunkIndexes(ctx context.Context, documentID int64) ([]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index FROM embedding WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding chunks: %w", err)
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

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func isUnitOrZero(norm float64) bool {
	return math.Abs(norm) <= normTolerance || math.Abs(norm-1) <= normTolerance
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// encodeVector serializes a vector as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 blob. Trailing bytes
// that do not fill a float are dropped.
func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
