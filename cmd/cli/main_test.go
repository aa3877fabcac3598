package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finanzas/internal/api"
	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/jobs/inmemory"
	"github.com/dvloznov/finanzas/internal/normalize"
	"github.com/dvloznov/finanzas/internal/pipeline"
	"github.com/dvloznov/finanzas/internal/schema"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

type fakeExtractor struct {
	yaml string
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (string, error) {
	return f.yaml, nil
}

type fakeSQL struct {
	query string
	err   error
}

func (f *fakeSQL) GenerateSQL(ctx context.Context, question string) (string, error) {
	return f.query, f.err
}

type fakeArchive struct {
	objects map[string]string
}

func (f *fakeArchive) ArchiveRaw(ctx context.Context, id, text string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeArchive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	text, ok := f.objects[uri]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return []byte(text), nil
}

type testEnv struct {
	app  *app
	repo *store.SQLiteRepository
	out  *bytes.Buffer
}

func newTestEnv(t *testing.T, extracted string) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, jobStore, inmemory.WithWorkers(1), inmemory.WithBackoff(time.Millisecond))
	handler := pipeline.NewJobHandler(pipeline.Deps{
		Extractor:  &fakeExtractor{yaml: extracted},
		Validator:  schema.NewValidator(schema.Lenient),
		Normalizer: normalize.New(normalize.Config{HomeCurrency: "ARS"}),
		Submitter:  &pipeline.RepositorySubmitter{Repo: repo},
	}, zerolog.Nop())
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		queue.Stop(stopCtx)
	})

	srv := httptest.NewServer(api.NewRouter(api.Options{
		Repo:      repo,
		APIKey:    "k",
		Publisher: queue,
		JobStore:  jobStore,
		Log:       zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIURL:       srv.URL,
		APIKey:       "k",
		HTTPTimeout:  5 * time.Second,
		RetryBackoff: time.Millisecond,
		HomeCurrency: "ARS",
	}
	out := &bytes.Buffer{}
	a := newApp(cfg, zerolog.Nop())
	a.client = ingest.New(ingest.Config{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.HTTPTimeout,
		Backoff: cfg.RetryBackoff,
	})
	a.out = out
	a.in = strings.NewReader("")
	a.pollEvery = 10 * time.Millisecond
	return &testEnv{app: a, repo: repo, out: out}
}

func (e *testEnv) seed(t *testing.T, txs ...domain.Transaction) {
	t.Helper()
	for i := range txs {
		if err := e.repo.Insert(context.Background(), &txs[i]); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
}

func (e *testEnv) count(t *testing.T) int {
	t.Helper()
	stats, err := e.repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return stats.TotalTransactions
}

func tx(id string, amount float64, income bool, category string) domain.Transaction {
	return domain.Transaction{
		ID:       id,
		Date:     "2026-03-01 12:00:00",
		Amount:   amount,
		Currency: "ARS",
		IsIncome: income,
		Category: category,
	}
}

func TestText(t *testing.T) {
	env := newTestEnv(t, "monto: 5000\ndescripcion: cafe\ncategoria: food")
	if err := env.app.run(context.Background(), "text", []string{"gasté", "5000", "en", "café"}); err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.Contains(env.out.String(), "Stored 1 transaction(s)") {
		t.Errorf("output = %q", env.out.String())
	}
	if got := env.count(t); got != 1 {
		t.Errorf("stored %d transactions, want 1", got)
	}
}

func TestTextDryRun(t *testing.T) {
	env := newTestEnv(t, "monto: 5000")
	if err := env.app.run(context.Background(), "text", []string{"-dry-run", "algo"}); err != nil {
		t.Fatalf("text: %v", err)
	}
	if got := env.count(t); got != 0 {
		t.Errorf("dry run stored %d transactions", got)
	}
}

func TestTextNoWait(t *testing.T) {
	env := newTestEnv(t, "monto: 1")
	if err := env.app.run(context.Background(), "text", []string{"-no-wait", "algo"}); err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.HasPrefix(env.out.String(), "Queued job ") {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestTextRequiresMessage(t *testing.T) {
	env := newTestEnv(t, "")
	err := env.app.run(context.Background(), "text", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, tx("a", 10, false, "food"))

	if err := env.app.run(context.Background(), "delete", []string{"a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := env.count(t); got != 0 {
		t.Errorf("count = %d after delete", got)
	}

	err := env.app.run(context.Background(), "delete", []string{"a"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAllConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		input     string
		wantCount int
	}{
		{"confirmed", nil, "SI\n", 0},
		{"confirmed without newline", nil, "SI", 0},
		{"lowercase is not enough", nil, "si\n", 2},
		{"refused", nil, "no\n", 2},
		{"no input", nil, "", 2},
		{"yes flag", []string{"-yes"}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.seed(t, tx("a", 10, false, "food"), tx("b", 20, true, "income"))
			env.app.in = strings.NewReader(tt.input)

			if err := env.app.run(context.Background(), "delete-all", tt.args); err != nil {
				t.Fatalf("delete-all: %v", err)
			}
			if got := env.count(t); got != tt.wantCount {
				t.Errorf("count = %d, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestRecentFormats(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, tx("first", 10, false, "food"), tx("second", 20, false, "transport"))

	tests := []struct {
		format string
		want   []string
	}{
		{"table", []string{"id", "first", "second", "10.00"}},
		{"csv", []string{"id,date,kind,amount", "first,2026-03-01 12:00:00,expense,10.00,ARS,food"}},
		{"json", []string{`"id": "first"`, `"amount": 20`}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			env.out.Reset()
			if err := env.app.run(context.Background(), "recent", []string{"-format", tt.format}); err != nil {
				t.Fatalf("recent: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(env.out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, env.out.String())
				}
			}
		})
	}

	if err := env.app.run(context.Background(), "recent", []string{"-format", "xml"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown format err = %v", err)
	}
}

func TestRecentEmpty(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.app.run(context.Background(), "recent", nil); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if !strings.Contains(env.out.String(), "No transactions.") {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestStatsAndBreakdown(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t,
		tx("s", 1000, true, "income"),
		tx("f1", 100, false, "food"),
		tx("f2", 300, false, "food"),
		tx("t", 50, false, "transport"),
	)

	if err := env.app.run(context.Background(), "stats", nil); err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, w := range []string{"1000.00", "450.00", "550.00", "4 transactions (1 income, 3 expenses)"} {
		if !strings.Contains(env.out.String(), w) {
			t.Errorf("stats output missing %q:\n%s", w, env.out.String())
		}
	}

	env.out.Reset()
	if err := env.app.run(context.Background(), "breakdown", nil); err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(env.out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("breakdown lines = %d:\n%s", len(lines), env.out.String())
	}
	if !strings.HasPrefix(lines[1], "food") || !strings.Contains(lines[1], "400.00") || !strings.Contains(lines[1], "200.00") {
		t.Errorf("food row = %q", lines[1])
	}

	if err := env.app.run(context.Background(), "breakdown", []string{"-by", "amount"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("breakdown -by amount err = %v", err)
	}
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, tx("a", 10, false, "food"), tx("b", 30, false, "food"))

	t.Run("raw sql as csv", func(t *testing.T) {
		env.out.Reset()
		err := env.app.run(context.Background(), "ask", []string{"-format", "csv", "-sql", "SELECT category, SUM(amount) AS total FROM transactions GROUP BY category"})
		if err != nil {
			t.Fatalf("ask: %v", err)
		}
		if got := env.out.String(); got != "category,total\nfood,40\n" {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("generated sql", func(t *testing.T) {
		env.out.Reset()
		env.app.sqlgen = &fakeSQL{query: "SELECT COUNT(*) AS n FROM transactions"}
		if err := env.app.run(context.Background(), "ask", []string{"-show-sql", "how", "many?"}); err != nil {
			t.Fatalf("ask: %v", err)
		}
		out := env.out.String()
		if !strings.Contains(out, "-- SELECT COUNT(*)") || !strings.Contains(out, "(1 rows)") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("unsafe generated sql", func(t *testing.T) {
		env.app.sqlgen = &fakeSQL{query: "DELETE FROM transactions"}
		err := env.app.run(context.Background(), "ask", []string{"borrá todo"})
		if !errors.Is(err, domain.ErrUnsafeQuery) {
			t.Errorf("err = %v, want ErrUnsafeQuery", err)
		}
		if got := env.count(t); got != 2 {
			t.Errorf("count = %d after rejected query", got)
		}
	})

	t.Run("no generator", func(t *testing.T) {
		env.app.sqlgen = nil
		if err := env.app.run(context.Background(), "ask", []string{"total?"}); err == nil {
			t.Error("expected an error without a generator")
		}
	})
}

func TestImportCSV(t *testing.T) {
	env := newTestEnv(t, "")
	path := filepath.Join(t.TempDir(), "tx.csv")
	data := "monto,descripcion,categoria\n5000,cafe,food\n-3,malo,food\n1200,colectivo,transport\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := env.app.run(context.Background(), "import-csv", []string{"-dry-run", path}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(env.out.String(), "row 3 rejected") || !strings.Contains(env.out.String(), "2 of 3 rows are valid") {
		t.Errorf("dry run output = %q", env.out.String())
	}
	if got := env.count(t); got != 0 {
		t.Fatalf("dry run stored %d", got)
	}

	env.out.Reset()
	if err := env.app.run(context.Background(), "import-csv", []string{path}); err != nil {
		t.Fatalf("import-csv: %v", err)
	}
	if got := env.count(t); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestImportCSVStrictRejectsUnknownColumn(t *testing.T) {
	env := newTestEnv(t, "")
	path := filepath.Join(t.TempDir(), "tx.csv")
	if err := os.WriteFile(path, []byte("monto,color\n10,azul\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := env.app.run(context.Background(), "import-csv", []string{path}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("strict err = %v, want ErrValidation", err)
	}
	if err := env.app.run(context.Background(), "import-csv", []string{"-mode", "lenient", path}); err != nil {
		t.Errorf("lenient: %v", err)
	}
	if got := env.count(t); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestReplay(t *testing.T) {
	env := newTestEnv(t, "monto: 75\ndescripcion: replay")
	env.app.archive = &fakeArchive{objects: map[string]string{
		"gs://bucket/raw/2026/03/01/abc.txt": "gasté 75",
	}}

	if err := env.app.run(context.Background(), "replay", []string{"gs://bucket/raw/2026/03/01/abc.txt"}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := env.count(t); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}

	err := env.app.run(context.Background(), "replay", []string{"gs://bucket/raw/missing.txt"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing object err = %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.app.run(context.Background(), "frobnicate", nil); err == nil {
		t.Error("expected an error for an unknown command")
	}
}

func TestRenderResultNulls(t *testing.T) {
	var buf bytes.Buffer
	res := domain.QueryResult{Columns: []string{"a", "b"}, Rows: [][]interface{}{{nil, 1.5}}, RowCount: 1}
	if err := renderResult(&buf, res, "csv"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "a,b\n,1.5\n" {
		t.Errorf("csv = %q", got)
	}
}
