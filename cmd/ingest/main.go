package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/logger"
	"github.com/dvloznov/finanzas/internal/normalize"
	"github.com/dvloznov/finanzas/internal/pipeline"
	"github.com/dvloznov/finanzas/internal/schema"
	"github.com/rs/zerolog"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailed)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})
	os.Exit(run(os.Args[1:], cfg, os.Stdin, os.Stdout, os.Stderr, log))
}

// run ingests YAML given as the first argument, with --file, or on stdin.
func run(args []string, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer, log zerolog.Logger) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "Read YAML from this file ('-' for stdin)")
	dryRun := fs.Bool("dry-run", false, "Validate and normalize only, print the records as JSON")
	strict := fs.Bool("strict", false, "Reject unrecognized keys")
	apiURL := fs.String("api-url", cfg.APIURL, "Persistence service base URL")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall deadline")
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}

	text, err := readInput(fs.Args(), *file, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}

	mode := schema.Lenient
	if *strict {
		mode = schema.Strict
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client := ingest.New(ingest.Config{
		BaseURL:        *apiURL,
		APIKey:         cfg.APIKey,
		Timeout:        cfg.HTTPTimeout,
		MaxReadRetries: cfg.MaxReadRetries,
		Backoff:        cfg.RetryBackoff,
	}, ingest.WithLogger(log))

	p := pipeline.NewIngestionPipeline(pipeline.Deps{
		Validator:  schema.NewValidator(mode),
		Normalizer: normalize.New(normalize.Config{HomeCurrency: cfg.HomeCurrency, Location: cfg.Location()}),
		Submitter:  client,
	}, *dryRun)

	state := &pipeline.PipelineState{YAML: text}
	if err := p.Execute(ctx, state); err != nil {
		printError(stderr, err)
		return exitFailed
	}

	for _, w := range state.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	for _, r := range state.Rejected {
		fmt.Fprintf(stderr, "record %d rejected:\n", r.Index+1)
		printError(stderr, r.Err)
	}

	if *dryRun {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state.Records); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
		return exitCode(len(state.Records), len(state.Records)+len(state.Rejected))
	}

	stored, _ := ingest.Counts(state.Outcomes)
	fmt.Fprintln(stdout, ingest.Summary(state.Outcomes))
	for _, o := range state.Outcomes {
		if o.OK() {
			fmt.Fprintf(stdout, "  %s %s\n", o.Status, o.ID)
		} else {
			fmt.Fprintf(stdout, "  rejected %s: %s\n", o.ID, domain.UserMessage(o.Err))
		}
	}
	return exitCode(stored, len(state.Outcomes)+len(state.Rejected))
}

func exitCode(stored, total int) int {
	switch {
	case total > 0 && stored == total:
		return exitOK
	case stored > 0:
		return exitPartial
	}
	return exitFailed
}

func readInput(args []string, file string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	switch {
	case len(args) > 0:
		data = []byte(strings.Join(args, "\n"))
	case file != "" && file != "-":
		data, err = os.ReadFile(file)
	default:
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no YAML given: pass it as an argument, with --file, or on stdin")
	}
	return string(data), nil
}

// printError lists every field of a validation error; other errors are
// rendered for the end user.
func printError(w io.Writer, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			fmt.Fprintf(w, "  %s: %s (%s)\n", f.Field, f.Message, f.Kind)
		}
		return
	}
	fmt.Fprintf(w, "Error: %s\n", domain.UserMessage(err))
}
