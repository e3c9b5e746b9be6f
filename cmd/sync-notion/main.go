package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/calycompta/compta-core/internal/audit"
	"github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/logger"
	"github.com/calycompta/compta-core/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	tenantID := flag.String("tenant", "", "Tenant identifier (required)")
	notionToken := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", "", "Notion review database ID (required)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Validate required flags
	if *tenantID == "" {
		log.Fatal().Msg("Error: --tenant is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("tenant_id", *tenantID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	// Initialize BigQuery repository
	repo, err := bigquery.NewBigQueryTransactionRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	// Analyze the tenant and push the flagged transactions
	report, err := audit.Analyze(ctx, repo, *tenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("Analyze failed")
	}

	// Initialize Notion client
	notionClient := notionsync.NewNotionClient(*notionToken)

	if err := notionsync.SyncAuditReport(ctx, notionClient, *notionDBID, report, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Println("Sync completed successfully.")
}
