package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/noesis-ai/noesis/internal/api/handlers"
	"github.com/noesis-ai/noesis/internal/config"
	"github.com/noesis-ai/noesis/internal/database"
	"github.com/noesis-ai/noesis/internal/index"
	"github.com/noesis-ai/noesis/internal/jobs"
	"github.com/noesis-ai/noesis/internal/openai"
	"github.com/noesis-ai/noesis/internal/repository"
	"github.com/noesis-ai/noesis/internal/server"
	"github.com/noesis-ai/noesis/internal/service"
	"github.com/noesis-ai/noesis/internal/storage"
	"github.com/noesis-ai/noesis/internal/telemetry"
	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the noesis API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if a DSN is set
	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	entryRepo := repository.NewEntryRepository(pool)
	versionRepo := repository.NewEntryVersionRepository(pool)
	retrievalLogRepo := repository.NewRetrievalLogRepository(pool)
	analyticsRepo := repository.NewAnalyticsRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var docStore *storage.DocumentStore
	if cfg.HasS3() {
		docStore, err = storage.NewDocumentStore(ctx, storage.DocumentStoreConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create document store: %w", err)
		}
		if err := docStore.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure document bucket: %w", err)
		}
		log.Printf("document bucket '%s' ready", cfg.S3Bucket)
	}

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
	if backend != nil && backend.RequiresVectors() && embedder == nil {
		log.Println("no embedding provider configured, running without an index backend")
		backend = nil
	}

	coordinator := service.NewIndexingCoordinator(embedder, backend, entryRepo)

	entrySvc := service.NewEntryService(txRunner, entryRepo, versionRepo, coordinator)
	if docStore != nil {
		entrySvc = entrySvc.WithDocumentStore(docStore)
	}
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, retrievalLogRepo)

	retrievalLogger := jobs.NewRetrievalLogger(retrievalLogRepo, 0)
	loggerCtx, stopLogger := context.WithCancel(ctx)
	go retrievalLogger.Start(loggerCtx)

	retrievalCfg := service.DefaultRetrievalConfig()
	if cfg.MatchThreshold > 0 {
		retrievalCfg.Threshold = cfg.MatchThreshold
	}
	if cfg.MatchCount > 0 {
		retrievalCfg.MatchCount = cfg.MatchCount
	}
	retrievalSvc := service.NewRetrievalServiceWithConfig(embedder, backend, entryRepo, retrievalLogger, retrievalCfg)

	// Retry failed embeddings in the background
	var sweeperWorker *jobs.Worker
	if coordinator.HasBackend() {
		sweeper := jobs.NewReindexSweeper(entryRepo, coordinator)
		sweeperWorker = jobs.NewWorker(sweeper, 30*time.Second)
		go sweeperWorker.Start(ctx)
		log.Println("reindex sweeper started")
	}

	routerCfg := server.RouterConfig{
		EntryHandler:     handlers.NewEntryHandler(entrySvc),
		RetrievalHandler: handlers.NewRetrievalHandler(retrievalSvc),
		AnalyticsHandler: handlers.NewAnalyticsHandler(analyticsSvc),
		AdminHandler:     handlers.NewAdminHandler(coordinator),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Drain in-flight requests before stopping the background loops:
	// a retrieve racing shutdown may still log.
	shutdownErr := srv.Shutdown(shutdownCtx)

	if sweeperWorker != nil {
		sweeperWorker.Stop()
	}
	stopLogger()
	retrievalLogger.Stop()

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	log.Println("server exited")
	return nil
}

// buildIndexBackend selects the vector index implementation. A nil
// backend disables indexing and retrieval degrades to no augmentation.
func buildIndexBackend(cfg *config.Config, pool *pgxpool.Pool) (index.Index, error) {
	switch cfg.VectorBackend {
	case "", "pgvector":
		return index.NewPgvectorIndex(pool), nil
	case "filesearch":
		if cfg.FileSearchEndpoint == "" {
			return nil, fmt.Errorf("VECTOR_BACKEND=filesearch requires FILESEARCH_ENDPOINT")
		}
		return index.NewFileSearchIndex(index.FileSearchConfig{
			BaseURL:   cfg.FileSearchEndpoint,
			APIKey:    cfg.FileSearchAPIKey,
			IndexName: cfg.FileSearchIndex,
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
