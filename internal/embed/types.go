// Package embed turns chunk and query text into dense vectors.
//
// The primary implementation talks to an OpenAI-compatible /v1/embeddings
// endpoint (LM Studio, Ollama's OpenAI shim, or the hosted API). A static
// hash-based embedder is available for tests and offline operation.
package embed

import (
	"context"
	"math"
	"time"
)

// Batching and retry defaults for the remote client.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize caps batch size to bound request payloads.
	MaxBatchSize = 512

	// DefaultBatchSize is the default number of inputs per request.
	DefaultBatchSize = 128

	// DefaultTimeout is the per-batch request timeout. Local model servers
	// can take a while on a cold start, so this is generous.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the number of attempts per batch before its
	// slots are marked failed.
	DefaultMaxRetries = 3

	// DefaultMaxBackoff caps the exponential retry delay.
	DefaultMaxBackoff = 10 * time.Second

	// DefaultBatchConcurrency is how many batch requests may be in flight
	// at once. Output order is re-aligned after the fact, so concurrency
	// never affects results.
	DefaultBatchConcurrency = 4
)

// DefaultModel is the embedding model requested when none is configured.
const DefaultModel = "text-embedding-3-small"

// StaticDimensions is the vector width of the offline static embedder.
const StaticDimensions = 256

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result
	// always has the same length and order as the input; slots that could
	// not be embedded hold zero vectors of the call's dominant dimension
	// (or empty vectors when nothing succeeded).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the model identifier used for bookkeeping in the
	// vector index.
	ModelName() string

	// Available reports whether the backing provider is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Normalize returns v scaled to unit length. A zero vector is returned
// unchanged, since there is no direction to preserve.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
