package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finanzas/internal/api"
	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

func newServer(t *testing.T) (*httptest.Server, *store.SQLiteRepository) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	srv := httptest.NewServer(api.NewRouter(api.Options{Repo: repo, APIKey: "k", Log: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	return srv, repo
}

func testConfig(url string) *config.Config {
	return &config.Config{
		APIURL:       url,
		APIKey:       "k",
		HTTPTimeout:  5 * time.Second,
		RetryBackoff: time.Millisecond,
		HomeCurrency: "ARS",
	}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  int
	}{
		{"single record", []string{"monto: 5000\ndescripcion: café"}, "", exitOK},
		{"args joined by newline", []string{"monto: 120", "categoria: food"}, "", exitOK},
		{"stdin batch", nil, "- monto: 1\n- monto: 2\n", exitOK},
		{"partial", nil, "- id: dup\n  monto: 1\n- id: dup\n  monto: 2\n", exitPartial},
		{"one valid one invalid", nil, "- monto: 10\n- monto: -3\n", exitPartial},
		{"missing amount", []string{"descripcion: nada"}, "", exitFailed},
		{"strict rejects unknown key", []string{"--strict", "monto: 1\ncolor: azul"}, "", exitFailed},
		{"lenient ignores unknown key", []string{"monto: 1\ncolor: azul"}, "", exitOK},
		{"empty input", nil, "  ", exitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t)
			var stdout, stderr bytes.Buffer
			got := run(tt.args, testConfig(srv.URL), strings.NewReader(tt.stdin), &stdout, &stderr, zerolog.Nop())
			if got != tt.want {
				t.Errorf("exit = %d, want %d\nstdout: %s\nstderr: %s", got, tt.want, stdout.String(), stderr.String())
			}
		})
	}
}

func TestRunStoresNormalizedRecord(t *testing.T) {
	srv, repo := newServer(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"id: cafe-1\nmonto: 5000\ndescripcion: café"}, testConfig(srv.URL), strings.NewReader(""), &stdout, &stderr, zerolog.Nop())
	if code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "1 inserted") {
		t.Errorf("stdout = %q, want a summary", stdout.String())
	}

	got, err := repo.Get(context.Background(), "cafe-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Amount != 5000 || got.Currency != "ARS" || got.IsIncome || got.Description != "café" || got.Date == "" {
		t.Errorf("stored = %+v", got)
	}
}

func TestRunDryRunSubmitsNothing(t *testing.T) {
	srv, repo := newServer(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"--dry-run", "monto: 42\nmoneda: usd"}, testConfig(srv.URL), strings.NewReader(""), &stdout, &stderr, zerolog.Nop())
	if code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}

	var records []domain.Transaction
	if err := json.Unmarshal(stdout.Bytes(), &records); err != nil {
		t.Fatalf("dry run output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(records) != 1 || records[0].Currency != "USD" || records[0].ID == "" {
		t.Errorf("records = %+v", records)
	}

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTransactions != 0 {
		t.Errorf("dry run stored %d transactions", stats.TotalTransactions)
	}
}

func TestRunAuthFailure(t *testing.T) {
	srv, _ := newServer(t)
	cfg := testConfig(srv.URL)
	cfg.APIKey = "wrong"
	var stdout, stderr bytes.Buffer
	if code := run([]string{"monto: 1"}, cfg, strings.NewReader(""), &stdout, &stderr, zerolog.Nop()); code != exitFailed {
		t.Errorf("exit = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(stderr.String(), "authentication") {
		t.Errorf("stderr = %q, want an authentication message", stderr.String())
	}
}

func TestRunMoreRecordsThanOneBatch(t *testing.T) {
	srv, repo := newServer(t)
	total := domain.MaxBatchSize + 1
	var in strings.Builder
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&in, "- monto: %d\n", i)
	}

	cfg := testConfig(srv.URL)
	cfg.HTTPTimeout = 30 * time.Second
	var stdout, stderr bytes.Buffer
	if code := run(nil, cfg, strings.NewReader(in.String()), &stdout, &stderr, zerolog.Nop()); code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTransactions != total {
		t.Errorf("stored %d transactions, want %d", stats.TotalTransactions, total)
	}
}
