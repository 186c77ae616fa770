package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// OpenAIConfig configures the OpenAI-compatible embedding client.
type OpenAIConfig struct {
	// BaseURL is the provider endpoint, with or without the /v1 suffix
	// (e.g. http://127.0.0.1:1234 for LM Studio).
	BaseURL string

	// APIKey is sent as a bearer token. Local servers accept any value.
	APIKey string

	// Model is the embedding model name.
	Model string

	// BatchSize is the number of inputs per request.
	BatchSize int

	// Timeout applies per batch attempt, not to the whole call.
	Timeout time.Duration

	// Concurrency is the number of batch requests in flight at once.
	Concurrency int

	// Retry configures per-batch backoff.
	Retry RetryConfig
}

// OpenAIEmbedder generates embeddings through an OpenAI-compatible
// /v1/embeddings endpoint with batching, per-batch retry, and degraded
// zero-vector output on permanent failure.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a new client. Missing config fields fall back
// to package defaults.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:1234/v1"
	}
	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultBatchConcurrency
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	// No client-level timeout: per-attempt context deadlines control each
	// request so a slow batch cannot starve its own retries.
	transport := &http.Transport{
		MaxIdleConns:        cfg.Concurrency,
		MaxIdleConnsPerHost: cfg.Concurrency,
		IdleConnTimeout:     30 * time.Second,
	}
	return &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

// normalizeBaseURL trims trailing slashes and appends /v1 when absent.
func normalizeBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// ModelName returns the configured model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, preserving input length and
// order. Batches run concurrently; each batch retries with exponential
// backoff and, once retries are exhausted, degrades its slots to zero
// vectors instead of failing the call. Only context cancellation aborts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			batch := texts[start:end]
			var vecs [][]float32
			err := withRetry(gctx, e.config.Retry, func() error {
				attemptCtx, cancel := context.WithTimeout(gctx, e.config.Timeout)
				defer cancel()
				var attemptErr error
				vecs, attemptErr = e.doEmbed(attemptCtx, batch)
				return attemptErr
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Permanent batch failure: leave the slots nil so the
				// zero-fill pass below degrades them instead of aborting
				// the whole ingestion.
				slog.Warn("embedding batch failed",
					slog.Int("offset", start),
					slog.Int("size", len(batch)),
					slog.String("model", e.config.Model),
					slog.String("error", err.Error()))
				return nil
			}
			copy(results[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fillFailures(results), nil
}

// doEmbed submits one batch and re-aligns the response to request order.
// Slots the provider did not answer for stay nil.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody := embeddingRequest{Input: batch, Model: e.config.Model}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.BaseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	vecs := make([][]float32, len(batch))
	for i, item := range result.Data {
		pos := item.Index
		if pos < 0 || pos >= len(batch) {
			// Provider without index bookkeeping: fall back to arrival order.
			pos = i
		}
		if pos < len(batch) && len(item.Embedding) > 0 {
			vecs[pos] = item.Embedding
		}
	}
	return vecs, nil
}

// fillFailures replaces nil or dimension-mismatched slots with zero
// vectors of the call's dominant dimension, taken from the first
// successful vector. With no successful vector at all, every slot becomes
// an empty vector. The caller can therefore index the result positionally
// without nil checks.
func fillFailures(results [][]float32) [][]float32 {
	dim := 0
	for _, v := range results {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	for i, v := range results {
		switch {
		case dim > 0 && len(v) == dim:
			// keep
		case dim > 0:
			results[i] = make([]float32, dim)
		default:
			results[i] = []float32{}
		}
	}
	return results
}

// Available reports whether the provider answers its /models endpoint.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, e.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections. The embedder cannot be used afterward.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
