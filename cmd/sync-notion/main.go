package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/logger"
	"github.com/dvloznov/finanzas/internal/notionsync"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})

	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDBID, "Notion database ID (or set NOTION_DATABASE_ID)")
	limit := flag.Int("limit", notionsync.DefaultLimit, "Number of most recent transactions to mirror")
	dbPath := flag.String("db", "", "Read from this SQLite file instead of the HTTP API")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	src, closeSrc, err := openSource(ctx, cfg, *dbPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("Failed to open source")
	}
	defer closeSrc()

	res, err := notionsync.Mirror(ctx, src, notionsync.NewNotionClient(*notionToken), notionsync.Options{
		DatabaseID: *notionDBID,
		Limit:      *limit,
		DryRun:     *dryRun,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n", res.Created, res.Updated, res.Archived, res.Failed)
}

// openSource reads from a local SQLite file when dbPath is set and from the
// HTTP service otherwise.
func openSource(ctx context.Context, cfg *config.Config, dbPath string, log zerolog.Logger) (notionsync.Source, func() error, error) {
	if dbPath != "" {
		repo, err := store.OpenSQLite(ctx, dbPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}
	client := ingest.New(ingest.Config{
		BaseURL:        cfg.APIURL,
		APIKey:         cfg.APIKey,
		Timeout:        cfg.HTTPTimeout,
		MaxReadRetries: cfg.MaxReadRetries,
		Backoff:        cfg.RetryBackoff,
	}, ingest.WithLogger(log))
	return client, func() error { return nil }, nil
}
