// Package app wires configuration, storage, the model provider and the
// knowledge pipeline into a ready-to-serve application container.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaiwa-go/kaiwa/internal/chat"
	"github.com/kaiwa-go/kaiwa/internal/config"
	"github.com/kaiwa-go/kaiwa/internal/history"
	"github.com/kaiwa-go/kaiwa/internal/rag"
)

// App is the core application container.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	History *history.Store
	Indexer *rag.Indexer
	Service *chat.Service
}

// Close releases all resources. Safe to call after a partial Setup.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}
