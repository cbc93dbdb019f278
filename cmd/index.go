package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaiwa-go/kaiwa/internal/app"
	"github.com/kaiwa-go/kaiwa/internal/config"
	"github.com/kaiwa-go/kaiwa/internal/log"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the document corpus into the knowledge store",
	Long: `Index chunks and embeds every document in the configured docs
directory, then writes the vectors to the knowledge store. The serve
command does this lazily on the first knowledge-augmented request;
index lets you warm the store up front.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex()
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if a.Indexer == nil {
		return errors.New("indexing requires an OpenAI API key")
	}
	if !a.Indexer.Ensure(ctx) {
		return fmt.Errorf("indexing failed or corpus is empty, see logs (docs_dir=%s)", cfg.DocsDir)
	}

	logger.Info("knowledge store is ready", "docs_dir", cfg.DocsDir)
	return nil
}
