package notionsync

import (
	"context"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService defines the interface for interacting with Notion API.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage updates an existing Notion page with the given properties.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage moves a page to the Notion trash.
	ArchivePage(ctx context.Context, pageID string) error
}

// Source supplies the transactions to mirror. Both the SQLite repository and
// the HTTP ingestion client satisfy it.
type Source interface {
	Recent(ctx context.Context, limit int) ([]domain.Transaction, error)
}
