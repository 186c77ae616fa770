package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevekb/steve/internal/config"
	"github.com/stevekb/steve/internal/embed"
	"github.com/stevekb/steve/internal/index"
	"github.com/stevekb/steve/internal/logging"
	"github.com/stevekb/steve/internal/search"
	"github.com/stevekb/steve/internal/server"
	"github.com/stevekb/steve/internal/store"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the static embedder (no network)")
	return cmd
}

func runServe(ctx context.Context, offline bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	cleanup, err := logging.Setup(logging.Config{Level: cfg.Log.Level, FilePath: cfg.Log.File})
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	embedder := buildEmbedder(cfg, offline)
	defer embedder.Close()

	manager, err := index.NewManager(s, embedder, index.ChunkParams{
		MaxTokens: cfg.Retrieval.ChunkSize,
		Overlap:   cfg.Retrieval.ChunkOverlap,
	})
	if err != nil {
		return err
	}
	engine, err := search.NewEngine(s, embedder)
	if err != nil {
		return err
	}

	srv := server.New(s, manager, engine, cfg.Retrieval)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

// buildEmbedder selects the provider from config. The offline flag
// forces the static embedder regardless of configuration.
func buildEmbedder(cfg *config.Config, offline bool) embed.Embedder {
	if offline || cfg.Embeddings.Provider == "static" {
		slog.Info("using static embedder")
		return embed.NewStaticEmbedder()
	}

	var e embed.Embedder = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		Model:     cfg.Embeddings.Model,
		BatchSize: cfg.Embeddings.BatchSize,
		Timeout:   cfg.Embeddings.Timeout,
	})
	if cfg.Embeddings.CacheSize > 0 {
		e = embed.NewCachedEmbedder(e, cfg.Embeddings.CacheSize)
	}
	slog.Info("using openai-compatible embedder",
		slog.String("model", cfg.Embeddings.Model),
		slog.String("base_url", cfg.Embeddings.BaseURL))
	return e
}
