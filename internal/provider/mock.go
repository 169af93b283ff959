package provider

import (
	"context"
	"math"

	"github.com/hyperjump/kiroku/pkg/utils"
)

// MockClient is a deterministic in-process Client for tests. The same text
// always gets the same unit-length embedding, and similarities are computed
// locally with plain cosine.
type MockClient struct {
	dimensions int
	// Fail makes every call return ErrUnavailable, simulating a dead service.
	Fail bool
}

// NewMockClient returns a mock client producing embeddings of the given dimensions.
func NewMockClient(dimensions int) *MockClient {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockClient{dimensions: dimensions}
}

// Embed returns a deterministic embedding derived from the text hash.
func (m *MockClient) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	if m.Fail {
		return nil, ErrUnavailable
	}
	return &EmbedResult{Vector: m.vectorFor(text), Chunks: 1}, nil
}

// EmbedBatch calls Embed for each text.
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.Fail {
		return nil, ErrUnavailable
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectorFor(t)
	}
	return out, nil
}

// SimilarityMatrix computes the pairwise cosine matrix locally.
func (m *MockClient) SimilarityMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	if m.Fail {
		return nil, ErrUnavailable
	}
	n := len(vectors)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sim := cosine(vectors[i], vectors[j])
			matrix[i][j] = sim
			matrix[j][i] = sim
		}
	}
	return matrix, nil
}

// Health reports ok unless Fail is set.
func (m *MockClient) Health(ctx context.Context) (*Health, error) {
	if m.Fail {
		return nil, ErrUnavailable
	}
	return &Health{Status: "ok", Model: "mock", ModelLoaded: true, MaxTokens: 8192}, nil
}

func (m *MockClient) vectorFor(text string) []float32 {
	var h uint64 = 14695981039346656037
	for _, b := range []byte(text) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	vec := make([]float32, m.dimensions)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(h%10000)*float64(i+1)) + 0.01)
	}
	utils.NormalizeL2(vec)
	return vec
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
