// Package main provides the RAG engine API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/covalent-ai/covalent/libs/rag-engine/cmd/rag-api/handlers"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/blob"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/cache"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/chunk"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/completion"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/config"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/extract"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/ingest"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/jobs"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/query"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("embedding", cfg.Embedding.Model).
		Str("completion", cfg.Completion.Primary.Type).
		Msg("Starting RAG engine API")

	ctx := context.Background()
	metrics := observability.NewMetrics()

	pool, err := storage.NewPool(ctx, cfg.Database.DSN, int(cfg.Database.MaxConns))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool, cfg.Embedding.Dimension); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	docRepo := storage.NewDocumentRepository(pool)
	chunkRepo := storage.NewChunkRepository(pool, cfg.Embedding.Dimension)
	keyRepo := storage.NewOrgKeyRepository(pool)

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid master key")
	}
	vault, err := crypto.NewKeyVault(masterKey, keyRepo, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create key vault")
	}

	blobStore, err := blob.NewFromConfig(ctx, cfg.Blob)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create blob store")
	}

	embedder, cacheClient, err := buildEmbedder(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create embedding client")
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	chain, err := completion.NewChainFromConfig(cfg.Completion, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create completion chain")
	}

	extractor := extract.New(logger)
	chunker := chunk.New(chunk.Config{
		Size:     cfg.Chunking.Size,
		Overlap:  cfg.Chunking.Overlap,
		Adaptive: cfg.Chunking.Adaptive,
	})

	scheduler := jobs.New(jobs.Config{
		Workers:      cfg.Jobs.Workers,
		QueueSize:    cfg.Jobs.QueueSize,
		SoftDeadline: cfg.Jobs.SoftDeadline,
	}, logger, metrics)

	ingestPipeline := ingest.NewPipeline(logger, metrics, docRepo, chunkRepo, blobStore, extractor, chunker, embedder, vault)
	ingestService := ingest.NewService(ingestPipeline, scheduler, docRepo, logger)

	queryPipeline := query.NewPipeline(logger, metrics, embedder, chain, chunkRepo, docRepo, vault, query.Config{
		ContextBudget: cfg.Completion.ContextBudget,
		Temperature:   cfg.Completion.Temperature,
		MaxTokens:     cfg.Completion.MaxTokens,
		Timeout:       cfg.Server.QueryTimeout,
	})

	router := NewRouter(RouterDeps{
		Logger:         logger,
		Metrics:        metrics,
		Ingest:         handlers.NewIngestHandler(logger, ingestService, docRepo, chunkRepo),
		Ask:            handlers.NewAskHandler(logger, metrics, queryPipeline),
		Health:         handlers.NewHealthHandler(logger, pool, embedder, chain),
		Admin:          handlers.NewAdminHandler(logger, vault, chunkRepo),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.ReadTimeout,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	// In-flight ingestions get the remainder of the shutdown window.
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Scheduler did not drain in time")
	}

	logger.Info().Msg("Server stopped")
}

// buildEmbedder creates the embedding client and, unless caching is off,
// wraps it with the query-embedding cache. The returned cache client is nil
// when no cache is in play.
func buildEmbedder(cfg *config.Config, logger *observability.Logger) (embedding.Embedder, cache.Client, error) {
	client, err := embedding.NewClient(embedding.Config{
		Type:      cfg.Embedding.Type,
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Cache.Driver {
	case "redis":
		redisClient, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create redis cache: %w", err)
		}
		return embedding.NewCachedEmbedder(client, redisClient, cfg.Cache.TTL, logger), redisClient, nil
	case "memory":
		memClient := cache.NewMemoryClient(cfg.Cache.MaxEntries)
		return embedding.NewCachedEmbedder(client, memClient, cfg.Cache.TTL, logger), memClient, nil
	default:
		return client, nil, nil
	}
}
