package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/jobs"
	"github.com/dvloznov/finanzas/internal/jobs/inmemory"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// mockRepo implements store.Repository with overridable funcs.
type mockRepo struct {
	insertFunc    func(ctx context.Context, tx *domain.Transaction) error
	deleteFunc    func(ctx context.Context, id string) error
	deleteAllFunc func(ctx context.Context, confirm string) (int64, error)
	statsFunc     func(ctx context.Context) (domain.Stats, error)
	recentFunc    func(ctx context.Context, limit int) ([]domain.Transaction, error)
	breakdownFunc func(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error)
	catalogFunc   func(ctx context.Context) (domain.Catalog, error)
	queryFunc     func(ctx context.Context, sql string) (domain.QueryResult, error)
	pingFunc      func(ctx context.Context) error
}

func (m *mockRepo) Insert(ctx context.Context, tx *domain.Transaction) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, tx)
	}
	return nil
}

func (m *mockRepo) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	return nil, domain.ErrNotFound
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockRepo) DeleteAll(ctx context.Context, confirm string) (int64, error) {
	if m.deleteAllFunc != nil {
		return m.deleteAllFunc(ctx, confirm)
	}
	return 0, nil
}

func (m *mockRepo) Stats(ctx context.Context) (domain.Stats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return domain.Stats{}, nil
}

func (m *mockRepo) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if m.recentFunc != nil {
		return m.recentFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockRepo) Breakdown(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error) {
	if m.breakdownFunc != nil {
		return m.breakdownFunc(ctx, by)
	}
	return nil, nil
}

func (m *mockRepo) Catalog(ctx context.Context) (domain.Catalog, error) {
	if m.catalogFunc != nil {
		return m.catalogFunc(ctx)
	}
	return domain.Catalog{}, nil
}

func (m *mockRepo) Query(ctx context.Context, sql string) (domain.QueryResult, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql)
	}
	return domain.QueryResult{}, nil
}

func (m *mockRepo) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func (m *mockRepo) Close() error { return nil }

const validTx = `{"id":"tx-1","date":"2026-03-01 10:00:00","amount":1500,"currency":"ARS","is_income":false,"category":"food","expense_type":"variable"}`

func newTransactionsHandler(repo *mockRepo) *TransactionsHandler {
	return NewTransactionsHandler(repo, NewCatalogCache(time.Minute), NewValidator(), time.UTC, zerolog.Nop())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) domain.ErrorResponse {
	t.Helper()
	var body domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		insertErr  error
		wantStatus int
		wantCode   string
		wantField  string
		wantKind   domain.FieldErrorKind
	}{
		{name: "stored", body: validTx, wantStatus: http.StatusOK},
		{name: "duplicate id", body: validTx, insertErr: fmt.Errorf("insert: %w", domain.ErrDuplicateID), wantStatus: http.StatusConflict, wantCode: "duplicate_id"},
		{
			name:       "missing id",
			body:       `{"date":"2026-03-01 10:00:00","amount":10,"currency":"USD"}`,
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation",
			wantField: "id", wantKind: domain.MissingRequiredField,
		},
		{
			name:       "zero amount",
			body:       `{"id":"a","date":"2026-03-01 10:00:00","amount":0,"currency":"USD"}`,
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation",
			wantField: "amount", wantKind: domain.InvalidFieldType,
		},
		{
			name:       "bad date",
			body:       `{"id":"a","date":"yesterday","amount":5,"currency":"USD"}`,
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation",
			wantField: "date", wantKind: domain.InvalidFieldType,
		},
		{
			name:       "unsupported currency",
			body:       `{"id":"a","date":"2026-03-01 10:00:00","amount":5,"currency":"EUR"}`,
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation",
			wantField: "currency", wantKind: domain.OutOfRangeValue,
		},
		{
			name:       "income with expense type",
			body:       `{"id":"a","date":"2026-03-01 10:00:00","amount":5,"currency":"USD","is_income":true,"expense_type":"fixed"}`,
			wantStatus: http.StatusUnprocessableEntity, wantCode: "validation",
			wantField: "expense_type", wantKind: domain.OutOfRangeValue,
		},
		{name: "unknown field", body: `{"id":"a","bogus":1}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "validation"},
		{name: "storage failure is opaque", body: validTx, insertErr: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inserted *domain.Transaction
			repo := &mockRepo{insertFunc: func(ctx context.Context, tx *domain.Transaction) error {
				inserted = tx
				return tt.insertErr
			}}
			h := newTransactionsHandler(repo)

			req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Ingest(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var resp domain.IngestResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if !resp.Success || resp.ID != "tx-1" {
					t.Errorf("response = %+v", resp)
				}
				if inserted == nil || inserted.Amount != 1500 {
					t.Errorf("inserted = %+v", inserted)
				}
				return
			}

			body := decodeError(t, rec)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && body.Error != "internal error" {
				t.Errorf("internal error leaked: %q", body.Error)
			}
			if tt.wantField != "" {
				found := false
				for _, f := range body.Fields {
					if f.Field == tt.wantField && f.Kind == tt.wantKind {
						found = true
					}
				}
				if !found {
					t.Errorf("fields = %+v, want %s/%s", body.Fields, tt.wantField, tt.wantKind)
				}
			}
		})
	}
}

func TestIngestBatchIsPartial(t *testing.T) {
	repo := &mockRepo{insertFunc: func(ctx context.Context, tx *domain.Transaction) error {
		if tx.ID == "b" {
			return domain.ErrDuplicateID
		}
		return nil
	}}
	h := newTransactionsHandler(repo)

	body := `{"transactions":[
		{"id":"a","date":"2026-03-01 10:00:00","amount":1,"currency":"ARS"},
		{"id":"b","date":"2026-03-01 10:00:00","amount":2,"currency":"ARS"},
		{"id":"c","date":"2026-03-01 10:00:00","amount":-3,"currency":"ARS"}
	]}`
	rec := httptest.NewRecorder()
	h.IngestBatch(rec, httptest.NewRequest(http.MethodPost, "/ingest/batch", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp domain.BatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Inserted != 1 || resp.Rejected != 2 {
		t.Fatalf("inserted/rejected = %d/%d, want 1/2", resp.Inserted, resp.Rejected)
	}
	wantCodes := []string{"", "duplicate_id", "validation"}
	for i, want := range wantCodes {
		if resp.Results[i].Code != want {
			t.Errorf("result %d code = %q, want %q", i, resp.Results[i].Code, want)
		}
	}
}

func TestIngestStoresCanonicalDates(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-05-01 12:00:00", "2024-05-01 12:00:00"},
		{"2024-05-01", "2024-05-01 00:00:00"},
		{"2024-05-01T09:30:00", "2024-05-01 09:30:00"},
		{"2024-05-01T10:00:00Z", "2024-05-01 10:00:00"},
		{"2024-05-01T10:00:00-03:00", "2024-05-01 13:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			var stored string
			repo := &mockRepo{insertFunc: func(ctx context.Context, tx *domain.Transaction) error {
				stored = tx.Date
				return nil
			}}
			h := newTransactionsHandler(repo)

			body := `{"id":"a","date":"` + tt.date + `","amount":1,"currency":"ARS"}`
			rec := httptest.NewRecorder()
			h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body)))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if stored != tt.want {
				t.Errorf("stored date = %q, want %q", stored, tt.want)
			}
		})
	}
}

func TestIngestBatchRejectsEmpty(t *testing.T) {
	h := newTransactionsHandler(&mockRepo{})
	rec := httptest.NewRecorder()
	h.IngestBatch(rec, httptest.NewRequest(http.MethodPost, "/ingest/batch", strings.NewReader(`{"transactions":[]}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestRecentLimit(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantStatus int
	}{
		{"", 10, http.StatusOK},
		{"?limit=3", 3, http.StatusOK},
		{"?limit=100000", 500, http.StatusOK},
		{"?limit=0", 10, http.StatusOK},
		{"?limit=abc", 0, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := 0
			repo := &mockRepo{recentFunc: func(ctx context.Context, limit int) ([]domain.Transaction, error) {
				got = limit
				return nil, nil
			}}
			h := newTransactionsHandler(repo)
			rec := httptest.NewRecorder()
			h.Recent(rec, httptest.NewRequest(http.MethodGet, "/transactions/recent"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got != tt.wantLimit {
				t.Errorf("limit = %d, want %d", got, tt.wantLimit)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(rec.Body.String(), `"transactions":[]`) {
				t.Errorf("empty list should render as [], got %s", rec.Body.String())
			}
		})
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestDelete(t *testing.T) {
	repo := &mockRepo{deleteFunc: func(ctx context.Context, id string) error {
		if id == "missing" {
			return fmt.Errorf("delete: %w", domain.ErrNotFound)
		}
		return nil
	}}
	h := newTransactionsHandler(repo)

	rec := httptest.NewRecorder()
	h.Delete(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/transactions/tx-1", nil), "id", "tx-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("delete existing: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/transactions/missing", nil), "id", "missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: status = %d, want 404", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "not_found" {
		t.Errorf("code = %q, want not_found", body.Code)
	}
}

func TestDeleteAllNeedsConfirmation(t *testing.T) {
	called := false
	repo := &mockRepo{deleteAllFunc: func(ctx context.Context, confirm string) (int64, error) {
		called = true
		return 7, nil
	}}
	h := newTransactionsHandler(repo)

	for _, q := range []string{"", "?confirm=yes", "?confirm=delete_all"} {
		rec := httptest.NewRecorder()
		h.DeleteAll(rec, httptest.NewRequest(http.MethodDelete, "/transactions"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", q, rec.Code)
		}
		body := decodeError(t, rec)
		if body.Code != "confirmation_required" || !strings.Contains(body.Error, domain.ConfirmDeleteAll) {
			t.Errorf("%q: body = %+v", q, body)
		}
	}
	if called {
		t.Fatal("repository must not be reached without the token")
	}

	rec := httptest.NewRecorder()
	h.DeleteAll(rec, httptest.NewRequest(http.MethodDelete, "/transactions?confirm=DELETE_ALL", nil))
	var resp domain.DeleteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Deleted != 7 {
		t.Errorf("status = %d, deleted = %d", rec.Code, resp.Deleted)
	}
}

func TestCatalogIsCachedUntilWrite(t *testing.T) {
	calls := 0
	repo := &mockRepo{catalogFunc: func(ctx context.Context) (domain.Catalog, error) {
		calls++
		return domain.Catalog{Categories: []string{"mascotas"}}, nil
	}}
	catalog := NewCatalogCache(time.Minute)
	stats := NewStatsHandler(repo, catalog, zerolog.Nop())
	txs := NewTransactionsHandler(repo, catalog, NewValidator(), time.UTC, zerolog.Nop())

	get := func() domain.Catalog {
		rec := httptest.NewRecorder()
		stats.Catalog(rec, httptest.NewRequest(http.MethodGet, "/catalog", nil))
		var c domain.Catalog
		if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return c
	}

	c := get()
	get()
	if calls != 1 {
		t.Fatalf("catalog calls = %d, want 1", calls)
	}
	hasBuiltin, hasObserved := false, false
	for _, v := range c.Categories {
		hasBuiltin = hasBuiltin || v == "food"
		hasObserved = hasObserved || v == "mascotas"
	}
	if !hasBuiltin || !hasObserved {
		t.Errorf("categories = %v, want suggestions merged with observed values", c.Categories)
	}

	rec := httptest.NewRecorder()
	txs.Ingest(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(validTx)))
	get()
	if calls != 2 {
		t.Errorf("catalog calls after write = %d, want 2", calls)
	}
}

func TestBreakdown(t *testing.T) {
	var gotBy domain.BreakdownField
	repo := &mockRepo{breakdownFunc: func(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error) {
		gotBy = by
		return []domain.BreakdownRow{{Key: "food", Total: 100, Count: 2, Average: 50}}, nil
	}}
	h := NewStatsHandler(repo, NewCatalogCache(time.Minute), zerolog.Nop())

	for _, tt := range []struct {
		query string
		want  domain.BreakdownField
	}{
		{"", domain.ByCategory},
		{"?by=payment_method", domain.ByPaymentMethod},
		{"?by=money_source", domain.ByMoneySource},
		{"?by=expense_type", domain.ByExpenseType},
	} {
		rec := httptest.NewRecorder()
		h.Breakdown(rec, httptest.NewRequest(http.MethodGet, "/stats/breakdown"+tt.query, nil))
		if rec.Code != http.StatusOK || gotBy != tt.want {
			t.Errorf("%q: status = %d, by = %q, want %q", tt.query, rec.Code, gotBy, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	h.Breakdown(rec, httptest.NewRequest(http.MethodGet, "/stats/breakdown?by=amount", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown column: status = %d, want 422", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		queryErr   error
		wantStatus int
	}{
		{"select", `{"sql":"SELECT 1"}`, nil, http.StatusOK},
		{"unsafe", `{"sql":"DELETE FROM transactions"}`, fmt.Errorf("%w: DELETE", domain.ErrUnsafeQuery), http.StatusBadRequest},
		{"empty", `{"sql":""}`, nil, http.StatusUnprocessableEntity},
		{"broken sql", `{"sql":"SELECT nope FROM"}`, fmt.Errorf("%w: syntax error", domain.ErrValidation), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{queryFunc: func(ctx context.Context, sql string) (domain.QueryResult, error) {
				if tt.queryErr != nil {
					return domain.QueryResult{}, tt.queryErr
				}
				return domain.QueryResult{Columns: []string{"1"}, Rows: [][]interface{}{{1}}, RowCount: 1}, nil
			}}
			h := NewQueryHandler(repo, NewValidator(), zerolog.Nop())
			rec := httptest.NewRecorder()
			h.Query(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	repo := &mockRepo{}
	h := NewHealthHandler(repo, "1.2.3", zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy: status = %d", rec.Code)
	}

	repo.pingFunc = func(ctx context.Context) error { return errors.New("closed") }
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health domain.Health
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable || health.Database != "disconnected" {
		t.Errorf("unhealthy: status = %d, body = %+v", rec.Code, health)
	}

	rec = httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var root domain.RootResponse
	if err := json.NewDecoder(rec.Body).Decode(&root); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root.App != "finanzas" || root.Version != "1.2.3" || root.Status != "running" {
		t.Errorf("root = %+v", root)
	}
}

type mockPublisher struct {
	published []*jobs.IngestTextJob
	err       error
}

func (m *mockPublisher) PublishIngestText(ctx context.Context, job *jobs.IngestTextJob) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func TestJobs(t *testing.T) {
	store := inmemory.NewStore()
	pub := &mockPublisher{}
	h := NewJobsHandler(pub, store, NewValidator(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.SubmitText(rec, httptest.NewRequest(http.MethodPost, "/ingest/text", strings.NewReader(`{"text":"gasté 1500 en el super"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp domain.JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Status != string(jobs.JobStatusPending) || len(pub.published) != 1 {
		t.Fatalf("resp = %+v, published = %d", resp, len(pub.published))
	}

	if err := store.SaveJob(context.Background(), pub.published[0]); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	rec = httptest.NewRecorder()
	h.GetJob(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/jobs/"+resp.ID, nil), "id", resp.ID))
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetJob(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/jobs/nope", nil), "id", "nope"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing: status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SubmitText(rec, httptest.NewRequest(http.MethodPost, "/ingest/text", strings.NewReader(`{"text":""}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty text: status = %d, want 422", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit=5", nil))
	var list []domain.JobResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list = %+v, want one job", list)
	}
}
