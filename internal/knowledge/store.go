package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kaiwa-go/kaiwa/internal/rag"
)

// Store persists embedded knowledge chunks in PostgreSQL with pgvector
// and answers cosine-similarity queries. It implements rag.VectorStore.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureCollection creates the extension, table and index when missing.
// The embedding column is sized to dim, so changing embedding models
// requires dropping the table first.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id UUID PRIMARY KEY,
			doc_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS knowledge_chunks_doc_id_idx ON knowledge_chunks (doc_id)`,
		`CREATE INDEX IF NOT EXISTS knowledge_chunks_embedding_idx
			ON knowledge_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure knowledge collection: %w", err)
		}
	}
	return nil
}

// Count returns the number of stored points.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count knowledge chunks: %w", err)
	}
	return count, nil
}

// Upsert writes points in a single batch, replacing rows with the same id.
func (s *Store) Upsert(ctx context.Context, points []rag.Point) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`INSERT INTO knowledge_chunks (id, doc_id, title, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				doc_id = EXCLUDED.doc_id,
				title = EXCLUDED.title,
				chunk_index = EXCLUDED.chunk_index,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding`,
			p.ID, p.Chunk.DocID, p.Chunk.Title, p.Chunk.ChunkIndex, p.Chunk.Text,
			pgvector.NewVector(p.Vector),
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert knowledge chunk: %w", err)
		}
	}
	return nil
}

// Search returns the limit nearest chunks by cosine distance, optionally
// restricted to the given document ids.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, docIDs []string) ([]rag.Hit, error) {
	query := `SELECT doc_id, title, chunk_index, content,
			1 - (embedding <=> $1) AS similarity
		FROM knowledge_chunks`
	args := []any{pgvector.NewVector(vector)}
	if len(docIDs) > 0 {
		query += ` WHERE doc_id = ANY($2)`
		args = append(args, docIDs)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search knowledge chunks: %w", err)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var hit rag.Hit
		if err := rows.Scan(&hit.Chunk.DocID, &hit.Chunk.Title, &hit.Chunk.ChunkIndex, &hit.Chunk.Text, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan knowledge chunk: %w", err)
		}
		hit.Chunk.ID = fmt.Sprintf("%s-%d", hit.Chunk.DocID, hit.Chunk.ChunkIndex)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search knowledge chunks: %w", err)
	}
	return hits, nil
}
