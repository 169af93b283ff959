// Package provider is the HTTP client for the external embedding service.
//
// The service computes embeddings and pairwise cosine similarity; Kiroku never
// runs embedding models locally. Similarity values are cosine, in [-1, 1].
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable reports that the embedding service could not be reached or
// answered with a non-success status. Callers degrade instead of failing the
// whole request (empty edge list, skipped embedding).
var ErrUnavailable = errors.New("embedding service unavailable")

// EmbedResult is the vector for one text plus how many chunks produced it.
type EmbedResult struct {
	Vector []float32
	Chunks int
}

// Health describes the embedding service state.
type Health struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	ModelLoaded bool   `json:"model_loaded"`
	MaxTokens   int    `json:"max_tokens"`
}

// Client defines the embedding service operations used by Kiroku.
type Client interface {
	Embed(ctx context.Context, text string) (*EmbedResult, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	SimilarityMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error)
	Health(ctx context.Context) (*Health, error)
}

// HTTPClient implements Client against the embedding service REST API.
// All calls go through a circuit breaker so a dead service fails fast instead
// of holding every request for the full timeout.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-service",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: cb,
		logger:  logger,
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Chunks    int       `json:"chunks"`
}

// Embed computes the embedding for one text. The service chunks long texts
// itself and mean-pools the chunk vectors.
func (c *HTTPClient) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	var resp embedResponse
	if err := c.post(ctx, "/embed", embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return &EmbedResult{Vector: resp.Embedding, Chunks: resp.Chunks}, nil
}

type batchEmbedRequest struct {
	Texts []string `json:"texts"`
}

type batchEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch computes embeddings for multiple texts in one request.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp batchEmbedResponse
	if err := c.post(ctx, "/embed/batch", batchEmbedRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

type matrixRequest struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type matrixResponse struct {
	Matrix [][]float64 `json:"matrix"`
}

// SimilarityMatrix returns the symmetric pairwise cosine similarity matrix for
// vectors. An empty input short-circuits without a network call.
func (c *HTTPClient) SimilarityMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	if len(vectors) == 0 {
		return [][]float64{}, nil
	}
	var resp matrixResponse
	if err := c.post(ctx, "/similarity/matrix", matrixRequest{Embeddings: vectors}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Matrix) != len(vectors) {
		return nil, fmt.Errorf("matrix size mismatch: sent %d vectors, got %d rows", len(vectors), len(resp.Matrix))
	}
	for i, row := range resp.Matrix {
		if len(row) != len(vectors) {
			return nil, fmt.Errorf("matrix row %d size mismatch: sent %d vectors, got %d columns", i, len(vectors), len(row))
		}
	}
	return resp.Matrix, nil
}

// Health probes the service. Unlike the other calls it bypasses the circuit
// breaker, so the UI status indicator can observe recovery directly.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &h, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, path, resp.StatusCode, snippet)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
