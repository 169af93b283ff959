package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/config"
	"github.com/hyperjump/kiroku/internal/models"
	"github.com/hyperjump/kiroku/internal/provider"
	"github.com/hyperjump/kiroku/internal/storage"
)

// fixedMatrixClient returns a canned similarity matrix.
type fixedMatrixClient struct {
	*provider.MockClient
	matrix [][]float64
	err    error
}

func (f *fixedMatrixClient) SimilarityMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matrix, nil
}

func testConfig() config.GraphConfig {
	return config.GraphConfig{MaxNodesForMatrix: 1000, EdgeCap: 100, NodeLimitDefault: 500}
}

func newBuilderWithEntries(t *testing.T, client provider.Client, ids ...string) (*Builder, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	for i, id := range ids {
		entry := &models.Entry{ID: id, Content: "entry " + id, Timestamp: int64(1000 * (i + 1)), Source: models.SourceManual}
		if err := store.CreateEntry(ctx, entry); err != nil {
			t.Fatal(err)
		}
		if err := store.UpsertEmbedding(ctx, id, []float32{float32(i), 1}, 1); err != nil {
			t.Fatal(err)
		}
	}
	return NewBuilder(store, client, testConfig(), zap.NewNop()), store
}

func TestBuildNodesExcludesUnembedded(t *testing.T) {
	b, store := newBuilderWithEntries(t, provider.NewMockClient(4), "a", "b")
	ctx := context.Background()
	if err := store.CreateEntry(ctx, &models.Entry{ID: "c", Content: "no vector", Source: models.SourceManual}); err != nil {
		t.Fatal(err)
	}

	ns, err := b.BuildNodes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ns.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(ns.Nodes))
	}
	for _, n := range ns.Nodes {
		if n.ID == "c" {
			t.Error("entry without embedding should be excluded")
		}
	}
	if len(ns.Vectors) != len(ns.Nodes) {
		t.Error("vectors must align with nodes")
	}
}

func TestBuildEdgesThresholdAndOrdering(t *testing.T) {
	// Nodes ordered newest first: c (3000), b (2000), a (1000).
	// Pairwise sims: c-b 0.1, c-a 0.2, b-a 0.9.
	client := &fixedMatrixClient{matrix: [][]float64{
		{1.0, 0.1, 0.2},
		{0.1, 1.0, 0.9},
		{0.2, 0.9, 1.0},
	}}
	b, _ := newBuilderWithEntries(t, client, "a", "b", "c")
	ctx := context.Background()

	ns, err := b.BuildNodes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}

	edges, err := b.BuildEdges(ctx, ns, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge above 0.5, got %d", len(edges))
	}
	if edges[0].Weight != 0.9 {
		t.Errorf("expected weight 0.9, got %f", edges[0].Weight)
	}

	all, err := b.BuildEdges(ctx, ns, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Weight > all[i-1].Weight {
			t.Error("edges must be sorted by descending weight")
		}
	}
}

func TestBuildEdgesNoSelfOrDuplicateEdges(t *testing.T) {
	b, _ := newBuilderWithEntries(t, provider.NewMockClient(4), "a", "b", "c", "d")
	ctx := context.Background()
	ns, err := b.BuildNodes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	edges, err := b.BuildEdges(ctx, ns, -1)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[[2]string]bool)
	for _, e := range edges {
		if e.Source == e.Target {
			t.Errorf("self edge: %s", e.Source)
		}
		key := [2]string{e.Source, e.Target}
		rev := [2]string{e.Target, e.Source}
		if seen[key] || seen[rev] {
			t.Errorf("duplicate pair: %s-%s", e.Source, e.Target)
		}
		seen[key] = true
	}
	// 4 nodes -> C(4,2) unordered pairs.
	if len(edges) != 6 {
		t.Errorf("expected 6 edges, got %d", len(edges))
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	b, _ := newBuilderWithEntries(t, provider.NewMockClient(4), "a", "b", "c", "d", "e")
	ctx := context.Background()
	ns, _ := b.BuildNodes(ctx, 10)
	all, err := b.BuildEdges(ctx, ns, -1)
	if err != nil {
		t.Fatal(err)
	}

	prev := len(all)
	for _, threshold := range []float64{-0.5, 0, 0.25, 0.5, 0.75, 1.0} {
		filtered := ThresholdEdges(all, threshold)
		if len(filtered) > prev {
			t.Errorf("raising threshold to %f added edges", threshold)
		}
		for _, e := range filtered {
			if e.Weight < threshold {
				t.Errorf("edge below threshold survived: %f < %f", e.Weight, threshold)
			}
		}
		prev = len(filtered)
	}
}

func TestBuildEdgesProviderDownReturnsEmpty(t *testing.T) {
	client := &fixedMatrixClient{err: provider.ErrUnavailable}
	b, _ := newBuilderWithEntries(t, client, "a", "b", "c")
	ctx := context.Background()
	ns, _ := b.BuildNodes(ctx, 10)

	edges, err := b.BuildEdges(ctx, ns, 0)
	if err != nil {
		t.Fatalf("provider outage must degrade, not fail: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("expected empty edge list, got %d", len(edges))
	}
}

func TestBuildEdgesMalformedMatrix(t *testing.T) {
	tests := []struct {
		name   string
		matrix [][]float64
	}{
		{"too few rows", [][]float64{{1, 0.5, 0.5}}},
		{"ragged rows", [][]float64{{1}, {1}, {1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fixedMatrixClient{matrix: tt.matrix}
			b, _ := newBuilderWithEntries(t, client, "a", "b", "c")
			ctx := context.Background()
			ns, _ := b.BuildNodes(ctx, 10)

			if _, err := b.BuildEdges(ctx, ns, 0); err == nil {
				t.Error("expected error for malformed matrix, got nil")
			}
		})
	}
}

func TestBuildEdgesTooManyNodes(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "g.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	cfg := config.GraphConfig{MaxNodesForMatrix: 2, EdgeCap: 100}
	b := NewBuilder(store, provider.NewMockClient(4), cfg, zap.NewNop())

	ns := &NodeSet{
		Nodes:   []*models.GraphNode{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Vectors: [][]float32{{1}, {2}, {3}},
	}
	_, err = b.BuildEdges(context.Background(), ns, 0)
	if !errors.Is(err, ErrTooManyNodes) {
		t.Errorf("expected ErrTooManyNodes, got %v", err)
	}
}

func TestProcessUnprocessed(t *testing.T) {
	mock := provider.NewMockClient(4)
	b, store := newBuilderWithEntries(t, mock)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateEntry(ctx, &models.Entry{ID: id, Content: "text " + id, Source: models.SourceManual}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := b.ProcessUnprocessed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 processed, got %d", n)
	}

	// Second run with no new entries processes nothing.
	n, err = b.ProcessUnprocessed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 processed on second run, got %d", n)
	}
}

func TestProcessUnprocessedContinuesOnError(t *testing.T) {
	mock := provider.NewMockClient(4)
	mock.Fail = true
	b, store := newBuilderWithEntries(t, mock)
	ctx := context.Background()
	_ = store.CreateEntry(ctx, &models.Entry{ID: "a", Content: "a", Source: models.SourceManual})
	_ = store.CreateEntry(ctx, &models.Entry{ID: "b", Content: "b", Source: models.SourceManual})

	n, err := b.ProcessUnprocessed(ctx)
	if err != nil {
		t.Fatalf("per-entry failures must not abort the batch: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 processed with failing provider, got %d", n)
	}
}

func TestStats(t *testing.T) {
	b, _ := newBuilderWithEntries(t, provider.NewMockClient(4), "a", "b")
	stats, err := b.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalNodes != 2 {
		t.Errorf("expected 2 nodes, got %d", stats.TotalNodes)
	}
	if stats.BySource["manual"] != 2 {
		t.Errorf("unexpected source counts: %v", stats.BySource)
	}
}
