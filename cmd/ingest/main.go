package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/ingest"
	"github.com/calycompta/compta-core/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	tenantID := flag.String("tenant", "", "Tenant identifier (required)")
	source := flag.String("source", "", "Statement CSV: local path or gs://bucket/file.csv (required)")
	flag.Parse()

	if *tenantID == "" {
		log.Fatal().Msg("Error: --tenant is required")
	}
	if *source == "" {
		log.Fatal().Msg("Error: --source is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("tenant_id", *tenantID).
		Str("source", *source).
		Msg("Starting statement import")

	repo, err := bigquery.NewBigQueryTransactionRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction repository")
	}
	defer repo.Close()

	state := &ingest.ImportState{
		TenantID: *tenantID,
		Source:   *source,
	}
	pipeline := ingest.NewStatementImportPipeline(ingest.NewGCSStorageService(), repo)

	if err := pipeline.Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d transactions.\n", state.Inserted)
}
