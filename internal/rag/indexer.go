package rag

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Point is one embedded chunk handed to the vector store. It exists only
// as the join between a Chunk and the store, never persisted elsewhere.
type Point struct {
	ID     string
	Vector []float32
	Chunk  Chunk
}

// Hit is one ranked search result.
type Hit struct {
	Chunk Chunk
	Score float64
}

// VectorStore is the nearest-neighbor store consumed by the indexer and
// the retriever.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, docIDs []string) ([]Hit, error)
}

// ChunkLoader supplies the full current corpus as chunks.
type ChunkLoader func(ctx context.Context) []Chunk

// Indexer keeps the vector store populated with one embedded point per
// corpus chunk. The staleness check is deliberately coarse: it re-embeds
// only when the stored point count is below the corpus chunk count, so
// same-count content edits go undetected.
type Indexer struct {
	store    VectorStore
	embedder Embedder
	load     ChunkLoader
	logger   *slog.Logger

	group singleflight.Group
}

// NewIndexer builds an Indexer. store or embedder may be nil, in which
// case Ensure always reports not ready.
func NewIndexer(store VectorStore, embedder Embedder, load ChunkLoader, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, embedder: embedder, load: load, logger: logger}
}

// Ensure makes the index ready, indexing the corpus when needed. It never
// returns an error: failures are logged and reported as not ready so the
// calling turn proceeds without knowledge augmentation.
//
// Concurrent callers observe at most one indexing run; late arrivals wait
// on the in-flight run's result instead of starting a duplicate.
func (idx *Indexer) Ensure(ctx context.Context) bool {
	if idx.store == nil || idx.embedder == nil {
		return false
	}
	ready, _, _ := idx.group.Do("ensure", func() (any, error) {
		return idx.ensure(ctx), nil
	})
	return ready.(bool)
}

func (idx *Indexer) ensure(ctx context.Context) bool {
	if err := idx.store.EnsureCollection(ctx, idx.embedder.Dimension()); err != nil {
		idx.logger.Error("ensuring vector collection", "error", err)
		return false
	}

	chunks := idx.load(ctx)
	if len(chunks) == 0 {
		return false
	}

	if !idx.needsReindex(ctx, len(chunks)) {
		return true
	}
	idx.logger.Info("re-indexing knowledge corpus", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		idx.logger.Error("embedding knowledge corpus", "error", err)
		return false
	}

	points := make([]Point, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		points = append(points, Point{ID: uuid.NewString(), Vector: vectors[i], Chunk: c})
	}
	if len(points) == 0 {
		return false
	}

	if err := idx.store.Upsert(ctx, points); err != nil {
		idx.logger.Error("upserting knowledge points", "error", err)
		return false
	}
	idx.logger.Info("knowledge indexing complete", "points", len(points))
	return true
}

// needsReindex reports whether the stored point count is below the
// expected chunk count. A count failure is treated as stale.
func (idx *Indexer) needsReindex(ctx context.Context, expected int) bool {
	count, err := idx.store.Count(ctx)
	if err != nil {
		return true
	}
	return count < expected
}
