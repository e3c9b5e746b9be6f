package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/calycompta/compta-core/internal/audit"
	"github.com/calycompta/compta-core/internal/logger"
)

// SyncAuditReport mirrors the duplicate-bearing transactions of an
// audit report into a Notion review database. The Transaction ID
// property on each page is the sync key:
//  1. pages whose transaction is no longer flagged are archived;
//  2. flagged transactions without a page get one created;
//  3. flagged transactions with a page are updated in place, so link
//     counts stay current after a partial fix.
func SyncAuditReport(ctx context.Context, notionClient NotionService, notionDBID string, report *audit.Report, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("tenant_id", report.TenantID).
		Int("flagged", len(report.WithDuplicates)).
		Bool("dry_run", dryRun).
		Msg("Starting audit report sync to Notion")

	flaggedIDs := make(map[string]bool, len(report.WithDuplicates))
	for _, entry := range report.WithDuplicates {
		flaggedIDs[entry.Transaction.ID] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	// Map existing pages by transaction ID and archive the stale ones.
	existingPages := make(map[string]string, len(notionPages))
	var archived int
	for _, page := range notionPages {
		txID := extractTransactionID(page)

		if txID != "" && flaggedIDs[txID] {
			existingPages[txID] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive resolved Notion page")
			archived++
			continue
		}

		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive resolved Notion page")
			continue
		}
		log.Info().
			Str("transaction_id", txID).
			Str("page_id", string(page.ID)).
			Msg("Archived resolved Notion page")
		archived++
	}

	var created, updated int
	for i := range report.WithDuplicates {
		entry := &report.WithDuplicates[i]
		txID := entry.Transaction.ID

		if dryRun {
			if existingPages[txID] != "" {
				log.Info().
					Str("transaction_id", txID).
					Msg("[DRY RUN] Would update Notion page")
				updated++
			} else {
				log.Info().
					Str("transaction_id", txID).
					Msg("[DRY RUN] Would create Notion page")
				created++
			}
			continue
		}

		props := AuditEntryToNotionProperties(report.TenantID, entry)

		if pageID := existingPages[txID]; pageID != "" {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", txID).
					Str("page_id", pageID).
					Msg("Failed to update Notion page")
				continue
			}
			log.Info().
				Str("transaction_id", txID).
				Str("page_id", pageID).
				Msg("Updated Notion page")
			updated++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Msg("Failed to create Notion page")
			continue
		}
		log.Info().
			Str("transaction_id", txID).
			Str("page_id", string(page.ID)).
			Msg("Created Notion page")
		created++
	}

	log.Info().
		Int("archived", archived).
		Int("created", created).
		Int("updated", updated).
		Int("flagged", len(report.WithDuplicates)).
		Msg("Audit report sync completed")

	return nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractTransactionID extracts the transaction ID from a Notion page's
// properties. Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties["Transaction ID"]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}
