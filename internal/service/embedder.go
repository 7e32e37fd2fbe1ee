package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"finbot/pkg/config"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmbeddingProvider converts a batch of texts into vectors of a fixed
// dimensionality, preserving input order.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingError distinguishes retryable provider failures (rate
// limits, 5xx, timeouts) from permanent ones.
type EmbeddingError struct {
	Transient bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (transient=%v): %v", e.Transient, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// EmbeddingResult is the per-text outcome of a batched embedding run.
// Exactly one of Vector and Err is set.
type EmbeddingResult struct {
	Vector []float32
	Err    error
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint with
// batched input.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenAIEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: cfg.BatchTimeout},
		logger:     logger,
	}
}

func (c *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := struct {
		Model      string   `json:"model"`
		Input      []string `json:"input"`
		Dimensions int      `json:"dimensions,omitempty"`
	}{Model: c.model, Input: texts, Dimensions: c.dimension}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EmbeddingError{Transient: true, Err: fmt.Errorf("embeddings request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, &EmbeddingError{
			Transient: transient,
			Err:       fmt.Errorf("embeddings failed with status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("failed to decode embeddings response: %w", err)}
	}
	if len(out.Data) != len(texts) {
		return nil, &EmbeddingError{Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data))}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &EmbeddingError{Err: fmt.Errorf("embedding index %d out of range", item.Index)}
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// Batcher runs embedding requests in bounded-concurrency batches.
// A failed batch never discards vectors from other batches: its texts
// are retried individually with backoff before being marked
// permanently failed.
type Batcher struct {
	provider     EmbeddingProvider
	batchSize    int
	concurrency  int
	batchTimeout time.Duration
	maxRetries   int
	logger       *zap.Logger
}

func NewBatcher(provider EmbeddingProvider, cfg *config.EmbeddingConfig, logger *zap.Logger) *Batcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batcher{
		provider:     provider,
		batchSize:    batchSize,
		concurrency:  concurrency,
		batchTimeout: cfg.BatchTimeout,
		maxRetries:   cfg.MaxRetries,
		logger:       logger,
	}
}

// EmbedAll embeds texts and returns a result slice parallel to the
// input. Partial failure is reported per text, never as a batch-wide
// loss.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) []EmbeddingResult {
	results := make([]EmbeddingResult, len(texts))

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			batch := texts[start:end]

			bctx, cancel := context.WithTimeout(ctx, b.batchTimeout)
			vectors, err := b.provider.EmbedBatch(bctx, batch)
			cancel()

			if err == nil && len(vectors) == len(batch) {
				for i, vec := range vectors {
					results[start+i] = EmbeddingResult{Vector: vec}
				}
				return nil
			}

			b.logger.Warn("Embedding batch failed, retrying texts individually",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			for i, text := range batch {
				vec, err := b.embedWithRetry(ctx, text)
				if err != nil {
					results[start+i] = EmbeddingResult{Err: err}
					continue
				}
				results[start+i] = EmbeddingResult{Vector: vec}
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// EmbedQuery embeds a single query string with the same retry policy
// as ingestion, keeping query and chunk vectors in the same space.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return b.embedWithRetry(ctx, text)
}

func (b *Batcher) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	operation := func() error {
		bctx, cancel := context.WithTimeout(ctx, b.batchTimeout)
		defer cancel()

		vectors, err := b.provider.EmbedBatch(bctx, []string{text})
		if err != nil {
			var embErr *EmbeddingError
			if errors.As(err, &embErr) && !embErr.Transient {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if len(vectors) != 1 {
			return backoff.Permanent(fmt.Errorf("expected 1 embedding, got %d", len(vectors)))
		}
		vec = vectors[0]
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.maxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return vec, nil
}
