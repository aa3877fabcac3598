package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/sqlguard"
	"github.com/rs/zerolog"
)

const (
	apiKeyHeader   = "X-API-Key"
	defaultTimeout = 30 * time.Second
	maxBackoff     = 5 * time.Second
	maxErrorBody   = 64 << 10
)

// Config holds the connection settings for the persistence service.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxReadRetries int
	Backoff        time.Duration
}

// Client talks to the persistence service over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for retry and request diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a Client. Every request is bounded by cfg.Timeout.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit stores one complete transaction.
func (c *Client) Submit(ctx context.Context, tx domain.Transaction) (domain.IngestResponse, error) {
	var resp domain.IngestResponse
	if err := c.write(ctx, http.MethodPost, "/ingest", tx, &resp); err != nil {
		return domain.IngestResponse{}, fmt.Errorf("Submit: %w", err)
	}
	return resp, nil
}

// Resubmit stores tx again after an earlier attempt ended in an unknown
// state. The id is reused, so a duplicate answer means the first attempt
// landed.
func (c *Client) Resubmit(ctx context.Context, tx domain.Transaction) (Outcome, error) {
	_, err := c.Submit(ctx, tx)
	switch {
	case err == nil:
		return Outcome{ID: tx.ID, Status: StatusInserted}, nil
	case errors.Is(err, domain.ErrDuplicateID):
		return Outcome{ID: tx.ID, Status: StatusAlreadyStored}, nil
	default:
		return Outcome{ID: tx.ID, Status: StatusRejected, Err: err}, err
	}
}

// SubmitBatch stores every transaction independently. A rejected record never
// rolls back the others; the returned outcomes line up with txs. Input larger
// than domain.MaxBatchSize goes out in several requests. When a later request
// fails, the records it carried are reported rejected with that error and the
// error return stays nil, since earlier records are already stored.
func (c *Client) SubmitBatch(ctx context.Context, txs []domain.Transaction) ([]Outcome, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, 0, len(txs))
	for start := 0; start < len(txs); start += domain.MaxBatchSize {
		end := min(start+domain.MaxBatchSize, len(txs))
		chunk, err := c.submitChunk(ctx, txs[start:end], start)
		if err != nil {
			if start == 0 {
				return nil, fmt.Errorf("SubmitBatch: %w", err)
			}
			c.log.Warn().Err(err).Int("from", start).Int("total", len(txs)).Msg("Batch request failed after earlier records were stored")
			for i := start; i < len(txs); i++ {
				outcomes = append(outcomes, Outcome{Index: i, ID: txs[i].ID, Status: StatusRejected, Err: err})
			}
			return outcomes, nil
		}
		outcomes = append(outcomes, chunk...)
	}
	return outcomes, nil
}

// submitChunk sends one /ingest/batch request. offset shifts the outcome
// indexes back into the caller's slice.
func (c *Client) submitChunk(ctx context.Context, txs []domain.Transaction, offset int) ([]Outcome, error) {
	var resp domain.BatchResponse
	if err := c.write(ctx, http.MethodPost, "/ingest/batch", domain.BatchRequest{Transactions: txs}, &resp); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(txs))
	for i, tx := range txs {
		outcomes[i] = Outcome{Index: offset + i, ID: tx.ID, Status: StatusRejected, Err: fmt.Errorf("%w: no result for record", domain.ErrInternal)}
	}
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(outcomes) {
			continue
		}
		o := Outcome{Index: offset + r.Index, ID: r.ID, Status: StatusInserted}
		if !r.Success {
			o.Status = StatusRejected
			o.Err = domain.ErrorFromCode(r.Code, r.Error)
		}
		outcomes[r.Index] = o
	}
	return outcomes, nil
}

// Delete removes one transaction by id.
func (c *Client) Delete(ctx context.Context, id string) (domain.DeleteResponse, error) {
	if strings.TrimSpace(id) == "" {
		return domain.DeleteResponse{}, fmt.Errorf("Delete: %w: id is required", domain.ErrValidation)
	}
	var resp domain.DeleteResponse
	if err := c.write(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, &resp); err != nil {
		return domain.DeleteResponse{}, fmt.Errorf("Delete: %w", err)
	}
	return resp, nil
}

// DeleteAll removes every transaction. It refuses without contacting the
// service unless confirm is domain.ConfirmDeleteAll.
func (c *Client) DeleteAll(ctx context.Context, confirm string) (domain.DeleteResponse, error) {
	if confirm != domain.ConfirmDeleteAll {
		return domain.DeleteResponse{}, fmt.Errorf("DeleteAll: pass %s to confirm: %w", domain.ConfirmDeleteAll, domain.ErrConfirmationRequired)
	}
	var resp domain.DeleteResponse
	path := "/transactions?confirm=" + url.QueryEscape(confirm)
	if err := c.write(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return domain.DeleteResponse{}, fmt.Errorf("DeleteAll: %w", err)
	}
	return resp, nil
}

// Stats fetches the aggregate view.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	if err := c.read(ctx, http.MethodGet, "/stats", nil, &s); err != nil {
		return domain.Stats{}, fmt.Errorf("Stats: %w", err)
	}
	return s, nil
}

// Recent fetches up to limit transactions, most recent first.
func (c *Client) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	var resp domain.RecentResponse
	path := "/transactions/recent?limit=" + strconv.Itoa(limit)
	if err := c.read(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return resp.Transactions, nil
}

// Breakdown fetches expense totals grouped by the given column.
func (c *Client) Breakdown(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error) {
	var resp domain.BreakdownResponse
	path := "/stats/breakdown?by=" + url.QueryEscape(string(by))
	if err := c.read(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("Breakdown: %w", err)
	}
	return resp.Rows, nil
}

// Catalog fetches the advisory suggestion lists.
func (c *Client) Catalog(ctx context.Context) (domain.Catalog, error) {
	var cat domain.Catalog
	if err := c.read(ctx, http.MethodGet, "/catalog", nil, &cat); err != nil {
		return domain.Catalog{}, fmt.Errorf("Catalog: %w", err)
	}
	return cat, nil
}

// Query runs a read-only SELECT. Unsafe statements are rejected locally.
func (c *Client) Query(ctx context.Context, sql string) (domain.QueryResult, error) {
	sql = sqlguard.Clean(sql)
	if err := sqlguard.CheckReadOnly(sql); err != nil {
		return domain.QueryResult{}, fmt.Errorf("Query: %w", err)
	}
	var resp domain.QueryResponse
	if err := c.read(ctx, http.MethodPost, "/query", domain.QueryRequest{SQL: sql}, &resp); err != nil {
		return domain.QueryResult{}, fmt.Errorf("Query: %w", err)
	}
	return domain.QueryResult{Columns: resp.Columns, Rows: resp.Rows, RowCount: resp.RowCount}, nil
}

// Health reports service and database reachability.
func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	var h domain.Health
	if err := c.read(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return domain.Health{}, fmt.Errorf("Health: %w", err)
	}
	return h, nil
}

// SubmitText queues free text for server-side extraction.
func (c *Client) SubmitText(ctx context.Context, text string, dryRun bool) (domain.JobResponse, error) {
	var resp domain.JobResponse
	if err := c.write(ctx, http.MethodPost, "/ingest/text", domain.TextIngestRequest{Text: text, DryRun: dryRun}, &resp); err != nil {
		return domain.JobResponse{}, fmt.Errorf("SubmitText: %w", err)
	}
	return resp, nil
}

// Job fetches the status of a text-ingestion job.
func (c *Client) Job(ctx context.Context, id string) (domain.JobResponse, error) {
	var resp domain.JobResponse
	if err := c.read(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return domain.JobResponse{}, fmt.Errorf("Job: %w", err)
	}
	return resp, nil
}

// write performs a state-changing request exactly once.
func (c *Client) write(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, body, out)
}

// read performs an idempotent request, retrying transient failures with
// bounded exponential backoff.
func (c *Client) read(ctx context.Context, method, path string, body, out interface{}) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, method, path, body, out)
		if err == nil || !retryable(err) || attempt >= c.cfg.MaxReadRetries {
			return err
		}

		wait := backoff(c.cfg.Backoff, attempt)
		c.log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Retrying read")

		select {
		case <-ctx.Done():
			return classifyTransport(ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encoding request: %v", domain.ErrValidation, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", domain.ErrTransport, err)
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", domain.ErrInternal, err)
	}
	return nil
}

// statusError maps a non-2xx response to the error taxonomy.
func statusError(resp *http.Response) error {
	var body domain.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusGatewayTimeout || body.Code == "timeout" {
		return fmt.Errorf("%w: server returned %d", domain.ErrTimeout, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		// Server-side details stay opaque.
		return fmt.Errorf("%w: server returned %d", domain.ErrInternal, resp.StatusCode)
	}

	if body.Code != "" {
		if len(body.Fields) > 0 {
			return &domain.ValidationError{Fields: body.Fields}
		}
		return domain.ErrorFromCode(body.Code, body.Error)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrorFromCode("authentication", body.Error)
	case http.StatusNotFound:
		return domain.ErrorFromCode("not_found", body.Error)
	case http.StatusConflict:
		return domain.ErrorFromCode("duplicate_id", body.Error)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if strings.Contains(body.Error, domain.ConfirmDeleteAll) {
			return domain.ErrorFromCode("confirmation_required", body.Error)
		}
		return domain.ErrorFromCode("validation", body.Error)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited", domain.ErrTransport)
	}
	return fmt.Errorf("%w: unexpected status %d", domain.ErrInternal, resp.StatusCode)
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrTransport, err)
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrTransport) ||
		errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, domain.ErrInternal)
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
