// Package graph assembles the similarity graph from stored entries and embeddings.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/config"
	"github.com/hyperjump/kiroku/internal/models"
	"github.com/hyperjump/kiroku/internal/provider"
	"github.com/hyperjump/kiroku/internal/storage"
)

// ErrTooManyNodes reports that the node set exceeds the configured ceiling for
// one synchronous pairwise similarity-matrix request.
var ErrTooManyNodes = errors.New("too many nodes for similarity matrix")

// NodeSet is the node list with vectors aligned by index, ready for edge construction.
type NodeSet struct {
	Nodes   []*models.GraphNode
	Vectors [][]float32
}

// Builder constructs graph nodes and edges.
type Builder struct {
	storage  storage.Storage
	provider provider.Client
	cfg      config.GraphConfig
	logger   *zap.Logger
}

// NewBuilder creates a Builder with the given dependencies.
func NewBuilder(store storage.Storage, client provider.Client, cfg config.GraphConfig, logger *zap.Logger) *Builder {
	return &Builder{storage: store, provider: client, cfg: cfg, logger: logger}
}

// BuildNodes returns up to limit nodes, each joined from entry + embedding.
// Entries without an embedding are excluded. When limit is <= 0 or above the
// matrix ceiling it is clamped so the default path degrades by truncation.
func (b *Builder) BuildNodes(ctx context.Context, limit int) (*NodeSet, error) {
	if limit <= 0 || limit > b.cfg.MaxNodesForMatrix {
		limit = b.cfg.MaxNodesForMatrix
	}
	embedded, err := b.storage.ListEmbedded(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list embedded entries: %w", err)
	}
	ns := &NodeSet{
		Nodes:   make([]*models.GraphNode, len(embedded)),
		Vectors: make([][]float32, len(embedded)),
	}
	for i, ee := range embedded {
		ns.Nodes[i] = &models.GraphNode{
			ID:        ee.Entry.ID,
			Content:   ee.Entry.Content,
			Timestamp: ee.Entry.Timestamp,
			Tags:      ee.Entry.Tags,
			Source:    ee.Entry.Source,
		}
		ns.Vectors[i] = ee.Vector
	}
	return ns, nil
}

// BuildEdges fetches the full pairwise similarity matrix for ns and returns
// edges with similarity >= minSimilarity, sorted by descending weight. Only
// i < j pairs are considered: no self-edges, one edge per unordered pair.
//
// The full matrix always covers every node regardless of threshold, so the
// canvas can re-threshold locally without another provider round-trip. When
// the provider is unreachable an empty edge list is returned instead of an
// error; layout still works with repulsion and gravity alone.
func (b *Builder) BuildEdges(ctx context.Context, ns *NodeSet, minSimilarity float64) ([]*models.GraphEdge, error) {
	n := len(ns.Nodes)
	if n < 2 {
		return []*models.GraphEdge{}, nil
	}
	if n > b.cfg.MaxNodesForMatrix {
		return nil, fmt.Errorf("%w: %d nodes, ceiling %d", ErrTooManyNodes, n, b.cfg.MaxNodesForMatrix)
	}

	matrix, err := b.provider.SimilarityMatrix(ctx, ns.Vectors)
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			b.logger.Warn("similarity matrix unavailable, returning empty edge list", zap.Error(err))
			return []*models.GraphEdge{}, nil
		}
		return nil, fmt.Errorf("similarity matrix: %w", err)
	}
	if len(matrix) != n {
		return nil, fmt.Errorf("similarity matrix: got %d rows for %d nodes", len(matrix), n)
	}
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("similarity matrix: row %d has %d columns for %d nodes", i, len(row), n)
		}
	}

	var edges []*models.GraphEdge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := matrix[i][j]
			if sim >= minSimilarity {
				edges = append(edges, &models.GraphEdge{
					Source: ns.Nodes[i].ID,
					Target: ns.Nodes[j].ID,
					Weight: sim,
				})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	if edges == nil {
		edges = []*models.GraphEdge{}
	}
	return edges, nil
}

// ThresholdEdges filters edges to those with weight >= minSimilarity.
// Input order (descending weight) is preserved, so re-thresholding an already
// built edge list is a cheap local operation.
func ThresholdEdges(edges []*models.GraphEdge, minSimilarity float64) []*models.GraphEdge {
	out := make([]*models.GraphEdge, 0, len(edges))
	for _, e := range edges {
		if e.Weight >= minSimilarity {
			out = append(out, e)
		}
	}
	return out
}

// ProcessUnprocessed computes and stores an embedding for every entry that
// lacks one. A failure for one entry is logged and skipped; the rest continue.
// Returns the number successfully processed.
func (b *Builder) ProcessUnprocessed(ctx context.Context) (int, error) {
	pending, err := b.storage.ListUnembedded(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unembedded entries: %w", err)
	}
	processed := 0
	for _, entry := range pending {
		result, err := b.provider.Embed(ctx, entry.Content)
		if err != nil {
			b.logger.Warn("embedding failed, skipping entry",
				zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		if err := b.storage.UpsertEmbedding(ctx, entry.ID, result.Vector, result.Chunks); err != nil {
			b.logger.Warn("storing embedding failed, skipping entry",
				zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		processed++
	}
	b.logger.Info("processed unembedded entries",
		zap.Int("pending", len(pending)), zap.Int("processed", processed))
	return processed, nil
}

// Stats returns corpus statistics for the embedded node set.
func (b *Builder) Stats(ctx context.Context) (*models.GraphStats, error) {
	count, err := b.storage.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	bySource, err := b.storage.CountBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	topTags, err := b.storage.TopTags(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("top tags: %w", err)
	}
	return &models.GraphStats{
		TotalNodes: int(count),
		BySource:   bySource,
		TopTags:    topTags,
	}, nil
}
