package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finanzas/internal/archive"
	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/jobs"
	"github.com/dvloznov/finanzas/internal/llm"
	"github.com/dvloznov/finanzas/internal/normalize"
	"github.com/dvloznov/finanzas/internal/pipeline"
	"github.com/dvloznov/finanzas/internal/schema"
	"github.com/rs/zerolog"
)

// confirmWord is what the user must type before a bulk delete.
const confirmWord = "SI"

type app struct {
	cfg     *config.Config
	client  *ingest.Client
	sqlgen  llm.SQLGenerator
	archive archive.Archiver

	in  io.Reader
	out io.Writer

	pollEvery time.Duration
	log       zerolog.Logger
}

func newApp(cfg *config.Config, log zerolog.Logger) *app {
	return &app{
		cfg:       cfg,
		in:        os.Stdin,
		out:       os.Stdout,
		pollEvery: time.Second,
		log:       log,
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "text":
		return a.runText(ctx, args)
	case "delete":
		return a.runDelete(ctx, args)
	case "delete-all":
		return a.runDeleteAll(ctx, args)
	case "recent":
		return a.runRecent(ctx, args)
	case "stats":
		return a.runStats(ctx, args)
	case "breakdown":
		return a.runBreakdown(ctx, args)
	case "ask":
		return a.runAsk(ctx, args)
	case "import-csv":
		return a.runImportCSV(ctx, args)
	case "replay":
		return a.runReplay(ctx, args)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *app) runText(ctx context.Context, args []string) error {
	fs := a.flags("text")
	dryRun := fs.Bool("dry-run", false, "Extract only, store nothing")
	noWait := fs.Bool("no-wait", false, "Print the job id and return immediately")
	wait := fs.Duration("wait", 2*time.Minute, "How long to wait for the job")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return fmt.Errorf("%w: text is required", domain.ErrValidation)
	}

	job, err := a.client.SubmitText(ctx, text, *dryRun)
	if err != nil {
		return err
	}
	if *noWait {
		fmt.Fprintf(a.out, "Queued job %s\n", job.ID)
		return nil
	}

	job, err = a.waitForJob(ctx, job.ID, *wait)
	if err != nil {
		return err
	}
	for _, w := range job.Warnings {
		fmt.Fprintf(a.out, "warning: %s\n", w)
	}
	if job.Status == string(jobs.JobStatusFailed) {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", job.ID, job.Attempts, job.Error)
	}
	if *dryRun {
		fmt.Fprintf(a.out, "Dry run finished, nothing stored.\n")
		return nil
	}
	fmt.Fprintf(a.out, "Stored %d transaction(s)\n", len(job.StoredIDs))
	for _, id := range job.StoredIDs {
		fmt.Fprintf(a.out, "  %s\n", id)
	}
	return nil
}

func (a *app) waitForJob(ctx context.Context, id string, limit time.Duration) (domain.JobResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(a.pollEvery)
	defer ticker.Stop()
	for {
		job, err := a.client.Job(ctx, id)
		if err != nil {
			return domain.JobResponse{}, err
		}
		switch jobs.JobStatus(job.Status) {
		case jobs.JobStatusCompleted, jobs.JobStatusFailed:
			return job, nil
		}
		select {
		case <-ctx.Done():
			return domain.JobResponse{}, fmt.Errorf("job %s still %s: %w", id, job.Status, domain.ErrTimeout)
		case <-ticker.C:
		}
	}
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	fs := a.flags("delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: cli delete <id>", domain.ErrValidation)
	}
	resp, err := a.client.Delete(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.Message)
	return nil
}

func (a *app) runDeleteAll(ctx context.Context, args []string) error {
	fs := a.flags("delete-all")
	yes := fs.Bool("yes", false, "Skip the interactive confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		fmt.Fprintf(a.out, "This deletes EVERY transaction. Type %s to continue: ", confirmWord)
		answer, _ := bufio.NewReader(a.in).ReadString('\n')
		if strings.TrimSpace(answer) != confirmWord {
			fmt.Fprintln(a.out, "Aborted, nothing was deleted.")
			return nil
		}
	}

	resp, err := a.client.DeleteAll(ctx, domain.ConfirmDeleteAll)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.Message)
	return nil
}

func (a *app) runRecent(ctx context.Context, args []string) error {
	fs := a.flags("recent")
	limit := fs.Int("n", 10, "Number of transactions")
	format := fs.String("format", "table", "Output format: table, json or csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	txs, err := a.client.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	return renderTransactions(a.out, txs, *format)
}

func (a *app) runStats(ctx context.Context, args []string) error {
	fs := a.flags("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stats, err := a.client.Stats(ctx)
	if err != nil {
		return err
	}
	renderStats(a.out, stats)
	return nil
}

func (a *app) runBreakdown(ctx context.Context, args []string) error {
	fs := a.flags("breakdown")
	by := fs.String("by", string(domain.ByCategory), "Group by category, payment_method, money_source or expense_type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	field, err := domain.ParseBreakdownField(*by)
	if err != nil {
		return err
	}
	rows, err := a.client.Breakdown(ctx, field)
	if err != nil {
		return err
	}
	renderBreakdown(a.out, field, rows)
	return nil
}

func (a *app) runAsk(ctx context.Context, args []string) error {
	fs := a.flags("ask")
	format := fs.String("format", "table", "Output format: table, json or csv")
	rawSQL := fs.String("sql", "", "Run this SELECT instead of generating one")
	showSQL := fs.Bool("show-sql", false, "Print the query before the result")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := *rawSQL
	if query == "" {
		question := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if question == "" {
			return fmt.Errorf("%w: a question or -sql is required", domain.ErrValidation)
		}
		if a.sqlgen == nil {
			return errors.New("GEMINI_API_KEY is not set; pass -sql to run a query directly")
		}
		generated, err := a.sqlgen.GenerateSQL(ctx, question)
		if err != nil {
			return err
		}
		query = generated
	}
	if *showSQL {
		fmt.Fprintf(a.out, "-- %s\n", query)
	}

	// Query runs the read-only guard before anything leaves the process.
	res, err := a.client.Query(ctx, query)
	if err != nil {
		return err
	}
	return renderResult(a.out, res, *format)
}

func (a *app) runImportCSV(ctx context.Context, args []string) error {
	fs := a.flags("import-csv")
	dryRun := fs.Bool("dry-run", false, "Validate and normalize only")
	modeName := fs.String("mode", "strict", "Validation mode: strict rejects unknown columns, lenient ignores them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: cli import-csv <file>", domain.ErrValidation)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("import-csv: %w", err)
	}
	defer f.Close()

	mode, err := schema.ParseMode(*modeName)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	inputs, err := schema.ParseCSV(f)
	if err != nil {
		return err
	}
	p := pipeline.NewIngestionPipeline(pipeline.Deps{
		Validator:  schema.NewValidator(mode),
		Normalizer: normalize.New(normalize.Config{HomeCurrency: a.cfg.HomeCurrency, Location: a.cfg.Location()}),
	}, true)

	state := &pipeline.PipelineState{Inputs: inputs}
	if err := p.Execute(ctx, state); err != nil {
		return err
	}
	for _, r := range state.Rejected {
		fmt.Fprintf(a.out, "row %d rejected: %s\n", r.Index+2, domain.UserMessage(r.Err))
	}
	if *dryRun {
		fmt.Fprintf(a.out, "%d of %d rows are valid, nothing stored.\n", len(state.Records), len(inputs))
		return nil
	}

	outcomes, err := a.client.SubmitBatch(ctx, state.Records)
	if err != nil {
		return fmt.Errorf("import-csv: %w", err)
	}
	fmt.Fprintln(a.out, ingest.Summary(outcomes))
	return nil
}

func (a *app) runReplay(ctx context.Context, args []string) error {
	fs := a.flags("replay")
	dryRun := fs.Bool("dry-run", false, "Extract only, store nothing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: cli replay gs://bucket/raw/...", domain.ErrValidation)
	}
	if a.archive == nil {
		return errors.New("ARCHIVE_BUCKET is not set")
	}

	raw, err := a.archive.Fetch(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	a.log.Info().Str("uri", fs.Arg(0)).Str("ingestion_id", archive.IDFromURI(fs.Arg(0))).Msg("Replaying archived message")

	replayArgs := []string{}
	if *dryRun {
		replayArgs = append(replayArgs, "-dry-run")
	}
	return a.runText(ctx, append(replayArgs, string(raw)))
}
