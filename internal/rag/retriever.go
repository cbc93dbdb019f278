package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// DefaultTopK is the number of fragments returned when the caller does
// not specify a limit.
const DefaultTopK = 4

// Retriever answers similarity queries over the indexed corpus. It
// implements chat.Retriever and degrades to an empty result set whenever
// any stage is unavailable, so a chat turn never fails on retrieval.
type Retriever struct {
	store    VectorStore
	embedder Embedder
	indexer  *Indexer
	logger   *slog.Logger
}

func NewRetriever(store VectorStore, embedder Embedder, indexer *Indexer, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: embedder, indexer: indexer, logger: logger}
}

// Search embeds the query and returns up to topK matching fragments,
// most similar first. Results with blank text are dropped. A blank query
// or an unready index yields nil.
func (r *Retriever) Search(ctx context.Context, query string, topK int, docIDs []string) []chat.Fragment {
	if strings.TrimSpace(query) == "" || r.store == nil || r.embedder == nil {
		return nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if r.indexer != nil && !r.indexer.Ensure(ctx) {
		return nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		if err != nil {
			r.logger.Error("embedding search query", "error", err)
		}
		return nil
	}

	hits, err := r.store.Search(ctx, vectors[0], topK, docIDs)
	if err != nil {
		r.logger.Error("searching knowledge store", "error", err)
		return nil
	}

	fragments := make([]chat.Fragment, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.Chunk.Text) == "" {
			continue
		}
		fragments = append(fragments, chat.Fragment{
			DocID:      hit.Chunk.DocID,
			Title:      hit.Chunk.Title,
			ChunkIndex: hit.Chunk.ChunkIndex,
			Text:       hit.Chunk.Text,
		})
	}
	return fragments
}
