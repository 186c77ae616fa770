// Package store is the persistence layer: collection and document
// metadata, the embedding (vector) index, and the FTS5 lexical indexes,
// all in one SQLite database so cross-index writes share a transaction.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Collection is a named grouping of documents (a knowledge base).
type Collection struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	DocCount  int       `json:"doc_count"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentMeta is the recognized optional metadata attached to a
// document. Only the original file path is modeled; unknown keys are
// deliberately not carried.
type DocumentMeta struct {
	FilePath string `json:"file_path,omitempty"`
}

// Document is one ingested document, owned by exactly one collection.
// Content holds the full extracted plain text; format parsing happens
// upstream of this package.
type Document struct {
	ID           int64         `json:"id"`
	CollectionID int64         `json:"collection_id"`
	Source       string        `json:"source"`
	Title        string        `json:"title"`
	Type         string        `json:"type"`
	Content      string        `json:"content,omitempty"`
	Meta         *DocumentMeta `json:"meta,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SearchHit is one scored chunk with enough document context for a
// consumer to cite its source. Both the vector and lexical query paths
// produce hits in this shape so the hybrid ranker can merge them by
// (DocumentID, ChunkIndex).
type SearchHit struct {
	DocumentID   int64   `json:"document_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	Source       string  `json:"source"`
	Title        string  `json:"title"`
	CollectionID int64   `json:"collection_id"`
	FilePath     string  `json:"file_path,omitempty"`
	Score        float64 `json:"score"`
}

// Key identifies a chunk across both indexes.
type Key struct {
	DocumentID int64
	ChunkIndex int
}

// LexicalStatus reports which path served a lexical query. The explicit
// status lets callers tell "empty because nothing matched" apart from
// "empty because the backend broke".
type LexicalStatus int

const (
	// LexicalOK means the chunk-level index answered.
	LexicalOK LexicalStatus = iota
	// LexicalFellBack means the chunk index errored and the coarser
	// document-level index answered instead (chunk indexes default to 0).
	LexicalFellBack
	// LexicalUnavailable means both granularities failed; results are
	// empty by unavailability, not by relevance.
	LexicalUnavailable
)

// String returns a human-readable status name.
func (s LexicalStatus) String() string {
	switch s {
	case LexicalOK:
		return "ok"
	case LexicalFellBack:
		return "fellback"
	case LexicalUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// DimensionMismatchError reports an embedding whose width differs from
// what a comparison expects. Query-path mismatches are skipped silently;
// this error is for callers that need the detail.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Stats summarizes store contents for status reporting.
type Stats struct {
	Collections int `json:"collections"`
	Documents   int `json:"documents"`
	Embeddings  int `json:"embeddings"`
}
