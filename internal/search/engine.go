package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stevekb/steve/internal/embed"
	"github.com/stevekb/steve/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs retrieval queries against the store. Both retrieval legs
// read the same database, so the engine's only concurrency concern is
// fanning the two queries out.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
}

// Response carries the ranked results plus enough signal for callers to
// tell a healthy empty answer from a degraded one.
type Response struct {
	Results []Result
	// LexicalStatus reports which keyword index answered, if any.
	LexicalStatus store.LexicalStatus
	// Took is the wall time of the whole retrieval call.
	Took time.Duration
}

// NewEngine creates a retrieval engine over the given store and embedder.
func NewEngine(s *store.Store, embedder embed.Embedder) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	return &Engine{store: s, embedder: embedder}, nil
}

// Search retrieves the best chunks for the query across the given
// collections. An empty candidate set or a query with no matches returns
// an empty response, not an error; only infrastructure failures error.
func (e *Engine) Search(ctx context.Context, query string, collectionIDs []int64, opts Options) (*Response, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	docIDs, err := e.store.DocumentIDsByCollections(ctx, collectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve search candidates: %w", err)
	}
	if len(docIDs) == 0 {
		return &Response{Results: []Result{}, LexicalStatus: store.LexicalOK, Took: time.Since(start)}, nil
	}

	// A failed embedding yields an empty vector; the semantic leg then
	// returns nothing and the keyword leg carries the query alone.
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var (
		semHits   []store.SearchHit
		kwHits    []store.SearchHit
		lexStatus = store.LexicalOK
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semHits, err = e.store.QueryVectors(gctx, docIDs, queryVec, opts.TopK)
		return err
	})
	if opts.Mode == ModeHybrid {
		g.Go(func() error {
			var err error
			kwHits, lexStatus, err = e.store.QueryLexical(gctx, docIDs, query, lexicalFetchSize(opts.TopK))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []Result
	if opts.Mode == ModeSemantic {
		results = semanticOnly(semHits, opts.TopK)
	} else {
		results = blend(semHits, kwHits, opts.Alpha, opts.TopK)
	}
	if results == nil {
		results = []Result{}
	}

	took := time.Since(start)
	slog.Debug("search completed",
		slog.String("mode", string(opts.Mode)),
		slog.Int("candidates", len(docIDs)),
		slog.Int("semantic_hits", len(semHits)),
		slog.Int("keyword_hits", len(kwHits)),
		slog.Int("results", len(results)),
		slog.String("lexical_status", lexStatus.String()),
		slog.Duration("took", took))

	return &Response{Results: results, LexicalStatus: lexStatus, Took: took}, nil
}
