package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevekb/steve/internal/store"
)

func hit(docID int64, chunk int, score float64) store.SearchHit {
	return store.SearchHit{DocumentID: docID, ChunkIndex: chunk, Score: score}
}

func TestBlendJoinsOnChunkKey(t *testing.T) {
	sem := []store.SearchHit{hit(1, 0, 0.9), hit(1, 1, 0.5)}
	kw := []store.SearchHit{hit(1, 0, 1.0), hit(2, 0, 0.8)}

	results := blend(sem, kw, 0.6, 10)
	require.Len(t, results, 3)

	byKey := map[store.Key]Result{}
	for _, r := range results {
		byKey[store.Key{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex}] = r
	}

	both := byKey[store.Key{DocumentID: 1, ChunkIndex: 0}]
	assert.InDelta(t, 0.6*0.9+0.4*1.0, both.Score, 1e-9)
	assert.InDelta(t, 0.9, both.SemScore, 1e-9)
	assert.InDelta(t, 1.0, both.KwScore, 1e-9)

	semOnly := byKey[store.Key{DocumentID: 1, ChunkIndex: 1}]
	assert.InDelta(t, 0.6*0.5, semOnly.Score, 1e-9)
	assert.Zero(t, semOnly.KwScore)

	kwOnly := byKey[store.Key{DocumentID: 2, ChunkIndex: 0}]
	assert.InDelta(t, 0.4*0.8, kwOnly.Score, 1e-9)
	assert.Zero(t, kwOnly.SemScore)
}

func TestBlendAlphaExtremes(t *testing.T) {
	sem := []store.SearchHit{hit(1, 0, 0.9), hit(1, 1, 0.2)}
	kw := []store.SearchHit{hit(1, 1, 1.0), hit(1, 0, 0.1)}

	// Pure semantic weighting reproduces the semantic order.
	results := blend(sem, kw, 1.0, 10)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)

	// Pure keyword weighting reproduces the keyword order.
	results = blend(sem, kw, 0.0, 10)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestBlendKeepsMaxKeywordScoreOnDuplicateKey(t *testing.T) {
	kw := []store.SearchHit{hit(1, 0, 0.3), hit(1, 0, 0.7), hit(1, 0, 0.5)}

	results := blend(nil, kw, 0.0, 10)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.7, results[0].KwScore, 1e-9)
}

func TestBlendTieBreaksByFirstSeenOrder(t *testing.T) {
	sem := []store.SearchHit{hit(1, 0, 0.5), hit(2, 0, 0.5), hit(3, 0, 0.5)}

	results := blend(sem, nil, 1.0, 10)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1), results[0].DocumentID)
	assert.Equal(t, int64(2), results[1].DocumentID)
	assert.Equal(t, int64(3), results[2].DocumentID)
}

func TestBlendTruncatesToTopK(t *testing.T) {
	var sem []store.SearchHit
	for i := 0; i < 8; i++ {
		sem = append(sem, hit(1, i, float64(8-i)/10))
	}

	results := blend(sem, nil, 1.0, 3)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].ChunkIndex)
}

func TestBlendEmptyInputs(t *testing.T) {
	assert.Empty(t, blend(nil, nil, 0.6, 5))
}

func TestSemanticOnly(t *testing.T) {
	sem := []store.SearchHit{hit(1, 0, 0.9), hit(1, 1, 0.4)}
	results := semanticOnly(sem, 1)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.9, results[0].SemScore, 1e-9)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	assert.NoError(t, opts.Validate())

	opts = Options{TopK: 0, Alpha: 0.5, Mode: ModeHybrid}
	assert.Error(t, opts.Validate())

	opts = Options{TopK: 5, Alpha: 1.5, Mode: ModeHybrid}
	assert.Error(t, opts.Validate())

	opts = Options{TopK: 5, Alpha: 0.5, Mode: "fuzzy"}
	assert.Error(t, opts.Validate())

	// An empty mode defaults to hybrid.
	opts = Options{TopK: 5, Alpha: 0.5}
	require.NoError(t, opts.Validate())
	assert.Equal(t, ModeHybrid, opts.Mode)
}

func TestLexicalFetchSize(t *testing.T) {
	assert.Equal(t, 20, lexicalFetchSize(5))
	assert.Equal(t, 20, lexicalFetchSize(1))
	assert.Equal(t, 30, lexicalFetchSize(15))
}
