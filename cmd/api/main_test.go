package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finanzas/internal/config"
	"github.com/rs/zerolog"
)

func TestOpenRepositorySQLite(t *testing.T) {
	cfg := &config.Config{Backend: config.BackendSQLite, DatabasePath: filepath.Join(t.TempDir(), "api.db")}
	repo, err := openRepository(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openRepository: %v", err)
	}
	defer repo.Close()

	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalTransactions != 0 {
		t.Errorf("fresh database has %d transactions", stats.TotalTransactions)
	}
}

func TestNewExtractorWithoutKey(t *testing.T) {
	if ext := newExtractor(context.Background(), &config.Config{}, zerolog.Nop()); ext != nil {
		t.Errorf("newExtractor = %T, want nil without GEMINI_API_KEY", ext)
	}
}
