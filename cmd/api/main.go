package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finanzas/internal/api"
	"github.com/dvloznov/finanzas/internal/archive"
	"github.com/dvloznov/finanzas/internal/config"
	infraBQ "github.com/dvloznov/finanzas/internal/infra/bigquery"
	"github.com/dvloznov/finanzas/internal/jobs/inmemory"
	"github.com/dvloznov/finanzas/internal/llm"
	"github.com/dvloznov/finanzas/internal/logger"
	"github.com/dvloznov/finanzas/internal/normalize"
	"github.com/dvloznov/finanzas/internal/pipeline"
	"github.com/dvloznov/finanzas/internal/schema"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port")
	flag.Parse()

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})
	ctx := logger.WithContext(context.Background(), log)

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to open repository")
	}
	defer repo.Close()

	if cfg.APIKey == "" {
		log.Warn().Msg("FINANZAS_API_KEY is not set - protected routes will answer 500")
	}

	opts := api.Options{
		Repo:           repo,
		APIKey:         cfg.APIKey,
		Version:        version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		CatalogTTL:     cfg.CatalogTTL,
		RequestTimeout: cfg.RequestTimeout,
		Location:       cfg.Location(),
		Log:            log,
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var jobQueue *inmemory.Queue
	if extractor := newExtractor(ctx, cfg, log); extractor != nil {
		deps := pipeline.Deps{
			Extractor:  extractor,
			Validator:  schema.NewValidator(schema.Lenient),
			Normalizer: normalize.New(normalize.Config{HomeCurrency: cfg.HomeCurrency, Location: cfg.Location()}),
			Submitter:  &pipeline.RepositorySubmitter{Repo: repo},
		}
		if cfg.ArchiveBucket != "" {
			arch, err := archive.NewGCSArchive(ctx, cfg.ArchiveBucket)
			if err != nil {
				log.Fatal().Err(err).Str("bucket", cfg.ArchiveBucket).Msg("Failed to open archive bucket")
			}
			defer arch.Close()
			deps.Archiver = arch
		}

		jobStore := inmemory.NewStore()
		jobQueue = inmemory.NewQueue(100, jobStore,
			inmemory.WithWorkers(cfg.Workers),
			inmemory.WithLogger(log),
		)
		if err := jobQueue.Start(workerCtx, pipeline.NewJobHandler(deps, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job workers")
		}
		log.Info().Int("workers", cfg.Workers).Msg("Text ingestion enabled")

		opts.Publisher = jobQueue
		opts.JobStore = jobStore
	} else {
		log.Warn().Msg("No Gemini API key configured - POST /ingest/text is disabled")
	}

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      api.NewRouter(opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("backend", cfg.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if jobQueue != nil {
		// Let in-flight jobs finish before the repository closes.
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		if err := jobQueue.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close job queue")
		}
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	if cfg.Backend == config.BackendBigQuery {
		repo, err := infraBQ.NewBigQueryRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureTable(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}
	return store.OpenSQLite(ctx, cfg.DatabasePath)
}

// newExtractor returns nil when no Gemini API key is configured.
func newExtractor(ctx context.Context, cfg *config.Config, log zerolog.Logger) llm.Extractor {
	if cfg.GeminiAPIKey == "" {
		return nil
	}
	client, err := llm.NewGeminiClient(ctx, llm.Config{Model: cfg.GeminiModel, APIKey: cfg.GeminiAPIKey}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	return client
}
