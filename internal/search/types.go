// Package search implements hybrid retrieval: semantic similarity over
// stored embeddings blended with BM25 keyword matching, aligned on the
// shared (document_id, chunk_index) chunk key.
package search

import "fmt"

const (
	// DefaultTopK is the result count when the caller does not ask for one.
	DefaultTopK = 5

	// DefaultAlpha weights the semantic side of the blend slightly above
	// the keyword side.
	DefaultAlpha = 0.6

	// MinLexicalFetch is the floor on lexical overfetch. The keyword side
	// always pulls at least this many candidates so the blend has material
	// even for small topK values.
	MinLexicalFetch = 20
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeHybrid blends semantic and keyword scores.
	ModeHybrid Mode = "hybrid"
	// ModeSemantic ranks by vector similarity alone.
	ModeSemantic Mode = "semantic"
)

// Options control one search call. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	// TopK is the number of results to return.
	TopK int
	// Alpha is the semantic weight in [0,1]; the keyword weight is 1-Alpha.
	Alpha float64
	// Mode picks hybrid or semantic-only ranking.
	Mode Mode
}

// DefaultOptions returns the standard retrieval settings.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, Alpha: DefaultAlpha, Mode: ModeHybrid}
}

// Validate checks ranges and normalizes the mode.
func (o *Options) Validate() error {
	if o.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", o.TopK)
	}
	if o.Alpha < 0 || o.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0,1], got %g", o.Alpha)
	}
	switch o.Mode {
	case ModeHybrid, ModeSemantic:
		return nil
	case "":
		o.Mode = ModeHybrid
		return nil
	default:
		return fmt.Errorf("unknown search mode %q", o.Mode)
	}
}

// lexicalFetchSize returns how many keyword candidates to overfetch for
// a blend that returns topK results.
func lexicalFetchSize(topK int) int {
	n := 2 * topK
	if n < MinLexicalFetch {
		n = MinLexicalFetch
	}
	return n
}
