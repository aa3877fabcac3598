package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/finanzas/internal/logger"
	"github.com/jomei/notionapi"
)

// DefaultLimit bounds how many recent transactions one run mirrors.
const DefaultLimit = 100

// Options controls a mirror run.
type Options struct {
	DatabaseID string
	Limit      int
	DryRun     bool
}

// Result counts what a mirror run did.
type Result struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// Mirror copies the most recent transactions of src into the Notion
// database. Pages are matched on the Transaction ID property, so running it
// twice creates nothing new; extra pages carrying an already mirrored id are
// archived. Per-page failures are logged and counted, not returned.
func Mirror(ctx context.Context, src Source, svc NotionService, opts Options) (Result, error) {
	log := logger.FromContext(ctx)
	if opts.DatabaseID == "" {
		return Result{}, fmt.Errorf("Mirror: database id is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	txs, err := src.Recent(ctx, opts.Limit)
	if err != nil {
		return Result{}, fmt.Errorf("Mirror: load transactions: %w", err)
	}
	log.Info().Int("transaction_count", len(txs)).Bool("dry_run", opts.DryRun).Msg("Loaded transactions to mirror")

	pages, err := queryAllPages(ctx, svc, opts.DatabaseID)
	if err != nil {
		return Result{}, fmt.Errorf("Mirror: %w", err)
	}

	var res Result
	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		id := transactionID(page)
		if id == "" {
			continue
		}
		if _, seen := existing[id]; !seen {
			existing[id] = string(page.ID)
			continue
		}
		if opts.DryRun {
			log.Info().Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive duplicate Notion page")
			res.Archived++
			continue
		}
		if err := svc.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("Failed to archive duplicate Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for i := range txs {
		tx := &txs[i]
		props, err := TransactionToProperties(tx)
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Skipping transaction")
			res.Failed++
			continue
		}

		pageID, found := existing[tx.ID]
		switch {
		case opts.DryRun && found:
			log.Info().Str("transaction_id", tx.ID).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
			res.Updated++
		case opts.DryRun:
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
			res.Created++
		case found:
			if _, err := svc.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID).Str("page_id", pageID).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
		default:
			page, err := svc.CreatePage(ctx, opts.DatabaseID, props)
			if err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			existing[tx.ID] = string(page.ID)
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Notion mirror completed")
	return res, nil
}

// queryAllPages follows the database cursor until every page is read.
func queryAllPages(ctx context.Context, svc NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := svc.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
