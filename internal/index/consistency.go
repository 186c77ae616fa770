package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/stevekb/steve/internal/store"
)

// InconsistencyType categorizes detected cross-index issues.
type InconsistencyType int

const (
	// InconsistencyMissingVector means a chunk is keyword-searchable but
	// has no embedding.
	InconsistencyMissingVector InconsistencyType = iota
	// InconsistencyMissingLexical means a chunk has an embedding but no
	// keyword entry.
	InconsistencyMissingLexical
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	default:
		return "unknown"
	}
}

// Inconsistency is one chunk whose two index entries disagree.
type Inconsistency struct {
	Type       InconsistencyType
	DocumentID int64
	ChunkIndex int
}

// CheckResult is the outcome of one consistency scan.
type CheckResult struct {
	// Documents is how many documents were scanned.
	Documents int
	// Chunks is how many distinct chunk keys were seen across both indexes.
	Chunks          int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker verifies that every document's chunk_index set is
// identical in the vector and lexical indexes. Ingestion writes both in
// one transaction, so divergence points at external modification or at a
// schema migration gone wrong.
type ConsistencyChecker struct {
	store *store.Store
}

// NewConsistencyChecker creates a checker over the given store.
func NewConsistencyChecker(s *store.Store) *ConsistencyChecker {
	return &ConsistencyChecker{store: s}
}

// Check scans every document and compares its chunk sets.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	docs, err := c.store.ListAllDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Documents: len(docs)}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embIdx, err := c.store.EmbeddingChunkIndexes(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		lexIdx, err := c.store.LexicalChunkIndexes(ctx, doc.ID)
		if err != nil {
			return nil, err
		}

		embSet := toSet(embIdx)
		lexSet := toSet(lexIdx)
		seen := map[int]bool{}
		for idx := range embSet {
			seen[idx] = true
			if !lexSet[idx] {
				result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
					Type: InconsistencyMissingLexical, DocumentID: doc.ID, ChunkIndex: idx,
				})
			}
		}
		for idx := range lexSet {
			seen[idx] = true
			if !embSet[idx] {
				result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
					Type: InconsistencyMissingVector, DocumentID: doc.ID, ChunkIndex: idx,
				})
			}
		}
		result.Chunks += len(seen)
	}

	result.Duration = time.Since(start)
	if n := len(result.Inconsistencies); n > 0 {
		slog.Warn("index consistency check found issues",
			slog.Int("documents", result.Documents),
			slog.Int("issues", n))
	} else {
		slog.Debug("index consistency check clean",
			slog.Int("documents", result.Documents),
			slog.Int("chunks", result.Chunks),
			slog.Duration("took", result.Duration))
	}
	return result, nil
}

// Repair reindexes every document that Check found inconsistent, which
// rewrites both index sides from the stored document text.
func (c *ConsistencyChecker) Repair(ctx context.Context, m *Manager, result *CheckResult) (int, error) {
	docIDs := map[int64]bool{}
	for _, issue := range result.Inconsistencies {
		docIDs[issue.DocumentID] = true
	}

	repaired := 0
	for docID := range docIDs {
		if _, err := m.Reindex(ctx, docID); err != nil {
			return repaired, err
		}
		repaired++
	}
	if repaired > 0 {
		slog.Info("repaired inconsistent documents", slog.Int("documents", repaired))
	}
	return repaired, nil
}

func toSet(idxs []int) map[int]bool {
	set := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		set[i] = true
	}
	return set
}
