package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// RequestsPerSecond is the average rate Notion allows per integration.
const RequestsPerSecond = 3

// NotionClient implements NotionService on top of the Notion SDK. Every call
// waits on a shared limiter so a large mirror run stays under the API limit.
type NotionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionClient builds a client for an integration token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(rate.Limit(RequestsPerSecond), RequestsPerSecond),
	}
}

func (n *NotionClient) wait(ctx context.Context, op string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", op, err)
	}
	return nil
}

// CreatePage adds a row to databaseID.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.wait(ctx, "CreatePage"); err != nil {
		return nil, err
	}
	page, err := n.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(databaseID)},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// UpdatePage replaces the given properties of pageID.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.wait(ctx, "UpdatePage"); err != nil {
		return nil, err
	}
	page, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase runs one page of a database query.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.wait(ctx, "QueryDatabase"); err != nil {
		return nil, err
	}
	resp, err := n.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// ArchivePage moves pageID to the trash.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if err := n.wait(ctx, "ArchivePage"); err != nil {
		return err
	}
	if _, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("ArchivePage: %w", err)
	}
	return nil
}

var _ NotionService = (*NotionClient)(nil)
