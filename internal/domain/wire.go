package domain

// Wire shapes shared by the HTTP server and the ingestion client.

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Code   string       `json:"code,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
}

// IngestResponse answers POST /ingest.
type IngestResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MaxBatchSize is the most records one POST /ingest/batch accepts. It must
// match the max tag on BatchRequest.
const MaxBatchSize = 500

// BatchRequest is the body of POST /ingest/batch.
type BatchRequest struct {
	Transactions []Transaction `json:"transactions" validate:"required,min=1,max=500"`
}

// BatchItemResult is the outcome of one record in a batch.
type BatchItemResult struct {
	Index   int    `json:"index"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BatchResponse answers POST /ingest/batch.
type BatchResponse struct {
	Inserted int               `json:"inserted"`
	Rejected int               `json:"rejected"`
	Results  []BatchItemResult `json:"results"`
}

// TextIngestRequest is the body of POST /ingest/text.
type TextIngestRequest struct {
	Text   string `json:"text" validate:"required,max=20000"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// JobResponse describes a queued text-ingestion job.
type JobResponse struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Attempts  int      `json:"attempts"`
	Error     string   `json:"error,omitempty"`
	StoredIDs []string `json:"stored_ids,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	SQL string `json:"sql" validate:"required,max=10000"`
}

// QueryResponse answers POST /query.
type QueryResponse struct {
	Success  bool            `json:"success"`
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	RowCount int             `json:"row_count"`
}

// RecentResponse answers GET /transactions/recent.
type RecentResponse struct {
	Success      bool          `json:"success"`
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// DeleteResponse answers both delete routes. Deleted is set on bulk deletes.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

// BreakdownResponse answers GET /stats/breakdown.
type BreakdownResponse struct {
	By   BreakdownField `json:"by"`
	Rows []BreakdownRow `json:"rows"`
}

// RootResponse answers GET /.
type RootResponse struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Status  string `json:"status"`
}
