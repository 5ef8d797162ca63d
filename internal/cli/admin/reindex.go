package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/noesis-ai/noesis/internal/config"
	"github.com/noesis-ai/noesis/internal/database"
	"github.com/noesis-ai/noesis/internal/openai"
	"github.com/noesis-ai/noesis/internal/repository"
	"github.com/noesis-ai/noesis/internal/service"
	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ReindexCmd returns the reindex command, a one-shot rebuild of the
// vector index without going through a running server.
func ReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-chunk and re-embed every entry into the index",
		RunE:  runReindex,
	}
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	var embedder service.EmbeddingProvider
	if cfg.HasOpenAI() {
		embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingModel:      openaiapi.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		})
	}

	backend, err := buildIndexBackend(cfg, pool)
	if err != nil {
		return err
	}
	if backend == nil {
		return fmt.Errorf("no index backend configured")
	}
	if backend.RequiresVectors() && embedder == nil {
		return fmt.Errorf("backend %q needs embeddings but NOESIS_OPENAI_API_KEY is not set", cfg.VectorBackend)
	}

	entryRepo := repository.NewEntryRepository(pool)
	coordinator := service.NewIndexingCoordinator(embedder, backend, entryRepo)

	count, err := coordinator.ReindexAll(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	log.Printf("reindexed %d entries", count)
	return nil
}
