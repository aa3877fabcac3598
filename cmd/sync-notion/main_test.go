package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finanzas/internal/config"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

func TestOpenSource(t *testing.T) {
	cfg := &config.Config{APIURL: "http://localhost:1"}

	t.Run("sqlite file", func(t *testing.T) {
		src, closeSrc, err := openSource(context.Background(), cfg, filepath.Join(t.TempDir(), "mirror.db"), zerolog.Nop())
		if err != nil {
			t.Fatalf("openSource: %v", err)
		}
		defer closeSrc()
		if _, ok := src.(*store.SQLiteRepository); !ok {
			t.Fatalf("source = %T, want *store.SQLiteRepository", src)
		}
		txs, err := src.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("fresh database returned %d transactions", len(txs))
		}
	})

	t.Run("http service", func(t *testing.T) {
		src, closeSrc, err := openSource(context.Background(), cfg, "", zerolog.Nop())
		if err != nil {
			t.Fatalf("openSource: %v", err)
		}
		if _, ok := src.(*ingest.Client); !ok {
			t.Errorf("source = %T, want *ingest.Client", src)
		}
		if err := closeSrc(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
}
