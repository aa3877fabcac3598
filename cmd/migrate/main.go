package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvloznov/finanzas/internal/config"
	infraBQ "github.com/dvloznov/finanzas/internal/infra/bigquery"
	"github.com/dvloznov/finanzas/internal/logger"
	"github.com/dvloznov/finanzas/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, os.Args[1:], cfg, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  migrate [options] up        Apply pending migrations")
	fmt.Fprintln(w, "  migrate [options] down      Revert every migration (SQLite only)")
	fmt.Fprintln(w, "  migrate [options] version   Print the applied schema version")
	fmt.Fprintln(w, "\nOptions:")
	fmt.Fprintln(w, "  -backend sqlite|bigquery   (default from STORAGE_BACKEND)")
	fmt.Fprintln(w, "  -db PATH                   SQLite file (default from DATABASE_PATH)")
}

func run(ctx context.Context, args []string, cfg *config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	backend := fs.String("backend", cfg.Backend, "Storage backend: sqlite or bigquery")
	dbPath := fs.String("db", cfg.DatabasePath, "SQLite database path")
	project := fs.String("project", cfg.BigQueryProject, "GCP project ID")
	dataset := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd := "up"
	if fs.NArg() > 0 {
		cmd = fs.Arg(0)
	}

	switch *backend {
	case config.BackendBigQuery:
		return runBigQuery(ctx, cmd, *project, *dataset, out)
	case config.BackendSQLite:
		return runSQLite(ctx, cmd, *dbPath, out)
	}
	return fmt.Errorf("unknown backend %q", *backend)
}

func runSQLite(ctx context.Context, cmd, path string, out io.Writer) error {
	log := logger.FromContext(ctx)

	db, err := store.OpenDB(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Str("path", path).Str("command", cmd).Msg("Connected to SQLite")

	switch cmd {
	case "up":
		if err := store.Migrate(db); err != nil {
			return err
		}
	case "down":
		if err := store.MigrateDown(db); err != nil {
			return err
		}
	case "version":
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}

	version, dirty, err := store.MigrationVersion(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

// BigQuery has no migration history; "up" creates the transactions table
// when it is missing.
func runBigQuery(ctx context.Context, cmd, project, dataset string, out io.Writer) error {
	if project == "" {
		return fmt.Errorf("-project is required for the bigquery backend")
	}
	if cmd != "up" {
		printUsage(out)
		return fmt.Errorf("command %q is not supported for bigquery", cmd)
	}

	repo, err := infraBQ.NewBigQueryRepository(ctx, project, dataset)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureTable(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "table %s is ready\n", infraBQ.Table{ProjectID: project, DatasetID: dataset}.FullName())
	return nil
}
