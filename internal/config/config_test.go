package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"FINANZAS_API_URL", "MODAL_API_URL", "STORAGE_BACKEND", "HOME_CURRENCY", "NOTION_TOKEN", "PORT", "TIMEZONE"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.HomeCurrency != "ARS" {
		t.Errorf("HomeCurrency = %q", cfg.HomeCurrency)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Location())
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MODAL_API_URL", "https://finanzas.example.com/")
	t.Setenv("FINANZAS_API_URL", "")
	t.Setenv("FINANZAS_API_KEY", "secret")
	t.Setenv("HOME_CURRENCY", "usd")
	t.Setenv("FINANZAS_HTTP_TIMEOUT", "5s")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("TIMEZONE", "Etc/GMT+3")
	t.Setenv("FINANZAS_MAX_READ_RETRIES", "not-a-number")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.APIURL != "https://finanzas.example.com" {
		t.Errorf("APIURL = %q, trailing slash should be trimmed", cfg.APIURL)
	}
	if cfg.APIKey != "secret" || cfg.HomeCurrency != "USD" || cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.MaxReadRetries != 3 {
		t.Errorf("MaxReadRetries = %d, want fallback 3", cfg.MaxReadRetries)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if _, offset := time.Date(2024, 5, 1, 0, 0, 0, 0, cfg.Location()).Zone(); offset != -3*60*60 {
		t.Errorf("Location offset = %d, want -3h", offset)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "postgres"}, "Backend"},
		{"bigquery without project", map[string]string{"STORAGE_BACKEND": "bigquery", "BIGQUERY_PROJECT_ID": ""}, "BigQueryProject"},
		{"unsupported currency", map[string]string{"HOME_CURRENCY": "EUR"}, "HomeCurrency"},
		{"notion token without database", map[string]string{"NOTION_TOKEN": "tok", "NOTION_DATABASE_ID": ""}, "NotionDBID"},
		{"bad url", map[string]string{"FINANZAS_API_URL": "not a url"}, "APIURL"},
		{"unknown timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "Timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should name %s", err, tt.field)
			}
		})
	}
}
