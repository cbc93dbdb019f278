package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"

	"github.com/kaiwa-go/kaiwa/db"
	"github.com/kaiwa-go/kaiwa/internal/chat"
	"github.com/kaiwa-go/kaiwa/internal/config"
	"github.com/kaiwa-go/kaiwa/internal/history"
	"github.com/kaiwa-go/kaiwa/internal/knowledge"
	"github.com/kaiwa-go/kaiwa/internal/provider"
	"github.com/kaiwa-go/kaiwa/internal/rag"
	"github.com/kaiwa-go/kaiwa/internal/tools"

	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Setup creates and initializes the application. Call Close to release.
//
// Without an OpenAI API key the application still starts: the model is
// replaced by a canned stub and knowledge retrieval is disabled.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.History = history.NewStore(pool)

	model, retriever := provideModelStack(a, cfg, logger)

	service, err := chat.NewService(chat.ServiceConfig{
		Model:        model,
		Registry:     tools.Default(),
		History:      a.History,
		Retriever:    retriever,
		SystemPrompt: cfg.SystemPrompt,
		TopK:         cfg.TopK,
		MaxTurns:     cfg.MaxTurns,
		Limiter:      rate.NewLimiter(rate.Limit(2), 4),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}
	a.Service = service

	return a, nil
}

// provideDBPool runs migrations and creates the connection pool. The
// pgvector types are registered on every new connection so embedding
// columns scan into pgvector.Vector directly.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	dsn := cfg.DSN()
	if err := db.Migrate(dsn, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideModelStack selects the model client and, when a key is present,
// assembles the knowledge pipeline behind it.
func provideModelStack(a *App, cfg *config.Config, logger *slog.Logger) (chat.ModelClient, chat.Retriever) {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("no OpenAI API key configured, running in stub mode")
		return provider.NewStubClient(), nil
	}

	model, err := provider.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel)
	if err != nil {
		logger.Warn("creating model client failed, running in stub mode", "error", err)
		return provider.NewStubClient(), nil
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	embedder := knowledge.NewOpenAIEmbedder(openai.NewClient(opts...), cfg.EmbeddingModel)

	splitter, err := rag.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		logger.Warn("invalid chunking configuration, knowledge disabled", "error", err)
		return model, nil
	}

	store := knowledge.NewStore(a.Pool)
	loader := func(ctx context.Context) []rag.Chunk {
		sources, err := rag.DiscoverSources(cfg.DocsDir)
		if err != nil {
			logger.Warn("discovering corpus sources", "dir", cfg.DocsDir, "error", err)
			return nil
		}
		return rag.LoadChunks(sources, splitter, logger)
	}
	a.Indexer = rag.NewIndexer(store, embedder, loader, logger)

	return model, rag.NewRetriever(store, embedder, a.Indexer, logger)
}
