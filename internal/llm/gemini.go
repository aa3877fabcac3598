package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finanzas/internal/schema"
	"github.com/dvloznov/finanzas/internal/sqlguard"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Extractor turns free text into YAML transaction documents.
type Extractor interface {
	Extract(ctx context.Context, text string) (string, error)
}

// SQLGenerator turns a question into a single SELECT statement.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
}

// Config selects the model and credentials. With an empty APIKey the client
// falls back to the GOOGLE_* environment (Vertex AI or Gemini API).
type Config struct {
	Model   string
	APIKey  string
	Timeout time.Duration
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient implements Extractor and SQLGenerator with Gemini.
type GeminiClient struct {
	generate generateFunc
	model    string
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewGeminiClient creates a GenAI client for cfg.
func NewGeminiClient(ctx context.Context, cfg Config, log zerolog.Logger) (*GeminiClient, error) {
	cc := &genai.ClientConfig{HTTPOptions: genai.HTTPOptions{APIVersion: "v1"}}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return newGeminiClient(client.Models.GenerateContent, cfg, log), nil
}

func newGeminiClient(gen generateFunc, cfg Config, log zerolog.Logger) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{generate: gen, model: cfg.Model, timeout: cfg.Timeout, now: time.Now, log: log}
}

// Extract asks the model for YAML documents describing the transactions in
// text. The result has code fences removed and must still be validated.
func (c *GeminiClient) Extract(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("Extract: empty text")
	}
	out, err := c.complete(ctx, "extract", extractionPrompt(c.now()), text)
	if err != nil {
		return "", fmt.Errorf("Extract: %w", err)
	}
	return schema.StripCodeFences(out), nil
}

// GenerateSQL asks the model for a query answering question. The query is
// run through the read-only guard before it is returned.
func (c *GeminiClient) GenerateSQL(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("GenerateSQL: empty question")
	}
	out, err := c.complete(ctx, "sql", sqlPrompt, question)
	if err != nil {
		return "", fmt.Errorf("GenerateSQL: %w", err)
	}
	sql := sqlguard.Clean(out)
	if err := sqlguard.CheckReadOnly(sql); err != nil {
		return "", fmt.Errorf("GenerateSQL: model produced %q: %w", sql, err)
	}
	return sql, nil
}

func (c *GeminiClient) complete(ctx context.Context, task, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: user}},
		},
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       genai.Ptr[float32](0.1),
		MaxOutputTokens:   1024,
	}

	start := time.Now()
	resp, err := c.generate(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	ev := c.log.Info().
		Str("task", task).
		Str("model", c.model).
		Dur("duration", time.Since(start))
	if u := resp.UsageMetadata; u != nil {
		ev = ev.
			Int32("prompt_tokens", u.PromptTokenCount).
			Int32("output_tokens", u.CandidatesTokenCount).
			Int32("total_tokens", u.TotalTokenCount)
	}
	ev.Msg("LLM call completed")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

var (
	_ Extractor    = (*GeminiClient)(nil)
	_ SQLGenerator = (*GeminiClient)(nil)
)
