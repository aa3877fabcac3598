package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/finanzas/internal/archive"
	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/llm"
	"github.com/dvloznov/finanzas/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if cmd := os.Args[1]; cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(os.Stdout)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	a := newApp(cfg, log)
	a.client = ingest.New(ingest.Config{
		BaseURL:        cfg.APIURL,
		APIKey:         cfg.APIKey,
		Timeout:        cfg.HTTPTimeout,
		MaxReadRetries: cfg.MaxReadRetries,
		Backoff:        cfg.RetryBackoff,
	}, ingest.WithLogger(log))

	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, llm.Config{Model: cfg.GeminiModel, APIKey: cfg.GeminiAPIKey}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		a.sqlgen = gemini
	}
	if cfg.ArchiveBucket != "" {
		arch, err := archive.NewGCSArchive(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open archive bucket")
		}
		defer arch.Close()
		a.archive = arch
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", domain.UserMessage(err))
		log.Debug().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Finanzas CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  text        Send a free-text message for extraction and storage")
	fmt.Fprintln(w, "  delete      Delete one transaction by id")
	fmt.Fprintln(w, "  delete-all  Delete every transaction (asks for confirmation)")
	fmt.Fprintln(w, "  recent      List the most recent transactions")
	fmt.Fprintln(w, "  stats       Show income, expenses and balance")
	fmt.Fprintln(w, "  breakdown   Group expenses by category or payment method")
	fmt.Fprintln(w, "  ask         Answer a question with a read-only SQL query")
	fmt.Fprintln(w, "  import-csv  Import transactions from a CSV file")
	fmt.Fprintln(w, "  replay      Resubmit an archived raw message")
	fmt.Fprintln(w, "  help        Show this help message")
	fmt.Fprintln(w, "\nRun 'cli <command> -h' for more information on a command.")
}
