package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Backend names a persistence implementation.
const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config is built once at startup and passed to constructors.
type Config struct {
	// Client side.
	APIURL         string        `validate:"required,url"`
	APIKey         string        // empty is allowed; the server then answers 500 on protected routes
	HTTPTimeout    time.Duration `validate:"gt=0"`
	MaxReadRetries int           `validate:"gte=0,lte=10"`
	RetryBackoff   time.Duration `validate:"gte=0"`

	// Server side.
	Port            string        `validate:"required,numeric"`
	Backend         string        `validate:"oneof=sqlite bigquery"`
	DatabasePath    string        `validate:"required_if=Backend sqlite"`
	BigQueryProject string        `validate:"required_if=Backend bigquery"`
	BigQueryDataset string        `validate:"required_if=Backend bigquery"`
	RateLimitRPS    float64       `validate:"gt=0"`
	RateLimitBurst  int           `validate:"gt=0"`
	CatalogTTL      time.Duration `validate:"gt=0"`
	RequestTimeout  time.Duration `validate:"gt=0"`
	Workers         int           `validate:"gte=1,lte=32"`

	HomeCurrency string `validate:"oneof=ARS USD CAD ETH BTC"`
	Timezone     string `validate:"required,timezone"`
	LogLevel     string
	LogFormat    string `validate:"omitempty,oneof=console json"`

	// Optional integrations.
	GeminiModel   string `validate:"required"`
	GeminiAPIKey  string
	ArchiveBucket string
	NotionToken   string
	NotionDBID    string `validate:"required_with=NotionToken"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Commands run from cmd/<name> find the repository .env one level up.
		_ = godotenv.Load("../.env")
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIURL:         strings.TrimRight(firstEnv([]string{"FINANZAS_API_URL", "MODAL_API_URL"}, "http://localhost:8080"), "/"),
		APIKey:         getEnv("FINANZAS_API_KEY", ""),
		HTTPTimeout:    getEnvAsDuration("FINANZAS_HTTP_TIMEOUT", 30*time.Second),
		MaxReadRetries: getEnvAsInt("FINANZAS_MAX_READ_RETRIES", 3),
		RetryBackoff:   getEnvAsDuration("FINANZAS_RETRY_BACKOFF", 500*time.Millisecond),

		Port:            getEnv("PORT", "8080"),
		Backend:         strings.ToLower(getEnv("STORAGE_BACKEND", BackendSQLite)),
		DatabasePath:    getEnv("DATABASE_PATH", "./finanzas.db"),
		BigQueryProject: getEnv("BIGQUERY_PROJECT_ID", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "finanzas"),
		RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 30),
		CatalogTTL:      getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		Workers:         getEnvAsInt("INGEST_WORKERS", 2),

		HomeCurrency: strings.ToUpper(getEnv("HOME_CURRENCY", "ARS")),
		Timezone:     getEnv("TIMEZONE", "UTC"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "console"),

		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),
		NotionToken:   getEnv("NOTION_TOKEN", ""),
		NotionDBID:    getEnv("NOTION_DATABASE_ID", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid settings: %s", strings.Join(msgs, ", "))
}

// Location is the zone stored dates are expressed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func firstEnv(keys []string, fallback string) string {
	for _, k := range keys {
		if v := getEnv(k, ""); v != "" {
			return v
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
