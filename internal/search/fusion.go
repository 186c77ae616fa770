package search

import (
	"sort"

	"github.com/stevekb/steve/internal/store"
)

// Result is one ranked chunk with its blended score and the per-source
// components that produced it.
type Result struct {
	store.SearchHit

	// SemScore is the cosine similarity contribution (0 when the chunk was
	// found by keyword match only).
	SemScore float64
	// KwScore is the keyword contribution on the bounded BM25-derived
	// scale (0 when the chunk was found semantically only).
	KwScore float64
}

// blend merges semantic and keyword hit lists into a single ranking.
//
// Lists are joined on the (document_id, chunk_index) key. A chunk found
// by only one side scores 0 on the other; a duplicate key within the
// keyword list keeps its maximum score. The blended score is
// alpha*sem + (1-alpha)*kw, sorted descending with first-seen order
// breaking ties, truncated to topK.
func blend(semHits, kwHits []store.SearchHit, alpha float64, topK int) []Result {
	merged := make([]Result, 0, len(semHits)+len(kwHits))
	byKey := make(map[store.Key]int, len(semHits)+len(kwHits))

	for _, h := range semHits {
		key := store.Key{DocumentID: h.DocumentID, ChunkIndex: h.ChunkIndex}
		if _, seen := byKey[key]; seen {
			continue
		}
		byKey[key] = len(merged)
		merged = append(merged, Result{SearchHit: h, SemScore: h.Score})
	}

	for _, h := range kwHits {
		key := store.Key{DocumentID: h.DocumentID, ChunkIndex: h.ChunkIndex}
		if i, seen := byKey[key]; seen {
			if h.Score > merged[i].KwScore {
				merged[i].KwScore = h.Score
			}
			continue
		}
		byKey[key] = len(merged)
		merged = append(merged, Result{SearchHit: h, KwScore: h.Score})
	}

	for i := range merged {
		merged[i].Score = alpha*merged[i].SemScore + (1-alpha)*merged[i].KwScore
	}

	// Stable sort keeps first-seen order on equal scores, so semantic
	// ordering wins ties.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// semanticOnly wraps vector hits as results without keyword blending.
func semanticOnly(semHits []store.SearchHit, topK int) []Result {
	out := make([]Result, 0, len(semHits))
	for _, h := range semHits {
		out = append(out, Result{SearchHit: h, SemScore: h.Score})
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
