// Package index orchestrates ingestion: chunking, embedding and the
// transactional writes that keep the vector and lexical indexes aligned
// on the shared (document_id, chunk_index) key.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stevekb/steve/internal/chunk"
	"github.com/stevekb/steve/internal/embed"
	"github.com/stevekb/steve/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ChunkParams control how ingested text is windowed.
type ChunkParams struct {
	MaxTokens int
	Overlap   int
}

// DefaultChunkParams returns the standard chunking window.
func DefaultChunkParams() ChunkParams {
	return ChunkParams{MaxTokens: chunk.DefaultMaxTokens, Overlap: chunk.DefaultOverlap}
}

// Manager owns the write path of the indexes. Reads go through the
// search engine; every mutation of indexed state goes through here so
// the per-document transaction boundary is in one place.
type Manager struct {
	store    *store.Store
	embedder embed.Embedder
	params   ChunkParams
}

// NewManager creates an index manager.
func NewManager(s *store.Store, embedder embed.Embedder, params ChunkParams) (*Manager, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if params.MaxTokens <= 0 {
		params = DefaultChunkParams()
	}
	return &Manager{store: s, embedder: embedder, params: params}, nil
}

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	DocumentID int64
	Chunks     int
	// Degraded is true when one or more chunks got a placeholder vector
	// because the embedding provider failed. The document is still fully
	// searchable by keyword.
	Degraded bool
	Took     time.Duration
}

// Ingest stores a document and indexes it: the text is windowed into
// chunks, each chunk is embedded, and both indexes are written in one
// transaction so a crash never leaves them disagreeing about a document.
//
// Embedding failures do not abort ingestion. Failed chunks carry zero or
// empty vectors and the result is marked degraded; re-ingesting the same
// content later replaces them.
func (m *Manager) Ingest(ctx context.Context, collectionID int64, source, title, docType, content string, meta *store.DocumentMeta) (*IngestResult, error) {
	start := time.Now()

	if _, err := m.store.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}

	docID, err := m.store.AddDocument(ctx, collectionID, source, title, docType, content, meta)
	if err != nil {
		return nil, err
	}

	chunks := chunk.Split(content, m.params.MaxTokens, m.params.Overlap)
	if len(chunks) == 0 {
		slog.Info("document ingested without chunks",
			slog.Int64("document_id", docID),
			slog.String("source", source))
		return &IngestResult{DocumentID: docID, Took: time.Since(start)}, nil
	}

	vectors, err := m.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document %d: %w", docID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	degraded := false
	pairs := make([]store.ChunkEmbedding, len(chunks))
	for i := range chunks {
		pairs[i] = store.ChunkEmbedding{Text: chunks[i], Vector: vectors[i]}
		if isPlaceholder(vectors[i]) {
			degraded = true
		}
	}

	if err := m.store.ReplaceDocumentIndex(ctx, docID, pairs, m.embedder.ModelName()); err != nil {
		return nil, fmt.Errorf("failed to index document %d: %w", docID, err)
	}

	took := time.Since(start)
	slog.Info("document ingested",
		slog.Int64("document_id", docID),
		slog.String("source", source),
		slog.Int("chunks", len(chunks)),
		slog.Bool("degraded", degraded),
		slog.Duration("took", took))

	return &IngestResult{DocumentID: docID, Chunks: len(chunks), Degraded: degraded, Took: took}, nil
}

// Reindex re-chunks and re-embeds an existing document in place, for
// example after switching embedding models.
func (m *Manager) Reindex(ctx context.Context, documentID int64) (*IngestResult, error) {
	start := time.Now()

	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chunks := chunk.Split(doc.Content, m.params.MaxTokens, m.params.Overlap)
	vectors, err := m.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document %d: %w", documentID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	degraded := false
	pairs := make([]store.ChunkEmbedding, len(chunks))
	for i := range chunks {
		pairs[i] = store.ChunkEmbedding{Text: chunks[i], Vector: vectors[i]}
		if isPlaceholder(vectors[i]) {
			degraded = true
		}
	}
	if err := m.store.ReplaceDocumentIndex(ctx, documentID, pairs, m.embedder.ModelName()); err != nil {
		return nil, fmt.Errorf("failed to reindex document %d: %w", documentID, err)
	}

	return &IngestResult{DocumentID: documentID, Chunks: len(chunks), Degraded: degraded, Took: time.Since(start)}, nil
}

// Remove deletes a document and all its index entries. Unknown ids are a
// no-op so retries converge.
func (m *Manager) Remove(ctx context.Context, documentID int64) error {
	if err := m.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	slog.Info("document removed", slog.Int64("document_id", documentID))
	return nil
}

// RemoveCollection deletes a collection, its documents and all their
// index entries.
func (m *Manager) RemoveCollection(ctx context.Context, collectionID int64) error {
	if err := m.store.DeleteCollection(ctx, collectionID); err != nil {
		return err
	}
	slog.Info("collection removed", slog.Int64("collection_id", collectionID))
	return nil
}

// isPlaceholder reports whether a vector is the degraded stand-in an
// embedding failure produces: empty, or all zeros.
func isPlaceholder(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
