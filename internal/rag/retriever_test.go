package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/kaiwa-go/kaiwa/internal/log"
)

func TestRetrieverSearch(t *testing.T) {
	store := &fakeVectorStore{hits: []Hit{
		{Chunk: Chunk{DocID: "guide", Title: "Guide", ChunkIndex: 1, Text: "useful text"}, Score: 0.9},
		{Chunk: Chunk{DocID: "guide", ChunkIndex: 2, Text: "   "}, Score: 0.5},
		{Chunk: Chunk{DocID: "faq", ChunkIndex: 0, Text: "more text"}, Score: 0.4},
	}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, log.NewNop())

	fragments := r.Search(context.Background(), "how?", 3, []string{"guide", "faq"})

	// The blank-text hit is filtered out.
	if len(fragments) != 2 {
		t.Fatalf("got %d fragments, want 2: %+v", len(fragments), fragments)
	}
	if fragments[0].DocID != "guide" || fragments[0].Title != "Guide" || fragments[0].ChunkIndex != 1 {
		t.Errorf("fragment 0 = %+v", fragments[0])
	}
	if store.gotLimit != 3 {
		t.Errorf("limit = %d, want 3", store.gotLimit)
	}
	if len(store.gotDocIDs) != 2 {
		t.Errorf("docIDs = %v", store.gotDocIDs)
	}
}

func TestRetrieverDefaultTopK(t *testing.T) {
	store := &fakeVectorStore{}
	r := NewRetriever(store, &fakeEmbedder{}, nil, log.NewNop())

	r.Search(context.Background(), "q", 0, nil)
	if store.gotLimit != DefaultTopK {
		t.Errorf("limit = %d, want %d", store.gotLimit, DefaultTopK)
	}
}

func TestRetrieverEmptyResults(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Retriever
		query string
	}{
		{
			name: "blank query",
			build: func() *Retriever {
				return NewRetriever(&fakeVectorStore{}, &fakeEmbedder{}, nil, log.NewNop())
			},
			query: "   ",
		},
		{
			name: "nil store",
			build: func() *Retriever {
				return NewRetriever(nil, &fakeEmbedder{}, nil, log.NewNop())
			},
			query: "q",
		},
		{
			name: "nil embedder",
			build: func() *Retriever {
				return NewRetriever(&fakeVectorStore{}, nil, nil, log.NewNop())
			},
			query: "q",
		},
		{
			name: "embedding fails",
			build: func() *Retriever {
				return NewRetriever(&fakeVectorStore{}, &fakeEmbedder{err: errors.New("quota")}, nil, log.NewNop())
			},
			query: "q",
		},
		{
			name: "store search fails",
			build: func() *Retriever {
				return NewRetriever(&fakeVectorStore{searchErr: errors.New("down")}, &fakeEmbedder{}, nil, log.NewNop())
			},
			query: "q",
		},
		{
			name: "index not ready",
			build: func() *Retriever {
				store := &fakeVectorStore{ensureErr: errors.New("no extension")}
				idx := NewIndexer(store, &fakeEmbedder{}, staticLoader(testChunks(1)), log.NewNop())
				return NewRetriever(store, &fakeEmbedder{}, idx, log.NewNop())
			},
			query: "q",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.build().Search(context.Background(), tt.query, 4, nil); got != nil {
				t.Errorf("Search = %+v, want nil", got)
			}
		})
	}
}

func TestRetrieverRunsIndexerFirst(t *testing.T) {
	store := &fakeVectorStore{hits: []Hit{{Chunk: Chunk{DocID: "d", Text: "t"}}}}
	embedder := &fakeEmbedder{}
	idx := NewIndexer(store, embedder, staticLoader(testChunks(2)), log.NewNop())
	r := NewRetriever(store, embedder, idx, log.NewNop())

	fragments := r.Search(context.Background(), "q", 4, nil)
	if len(fragments) != 1 {
		t.Fatalf("got %d fragments", len(fragments))
	}
	if len(store.points) != 2 {
		t.Errorf("index was not populated before search: %d points", len(store.points))
	}
}
