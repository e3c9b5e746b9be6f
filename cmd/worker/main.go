package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calycompta/compta-core/internal/audit"
	infraBQ "github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/jobs"
	"github.com/calycompta/compta-core/internal/jobs/inmemory"
	"github.com/calycompta/compta-core/internal/logger"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	log.Info().Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	repo, err := infraBQ.NewBigQueryTransactionRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction repository")
	}
	defer repo.Close()

	// Create job handler that repairs duplicate entity links. The job
	// is re-analyzed at execution time so a stale selection can never
	// rewrite a transaction that was already repaired.
	handler := func(ctx context.Context, job jobs.Job) error {
		fixJob, ok := job.(*jobs.FixDuplicatesJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", fixJob.JobID).
			Str("tenant_id", fixJob.TenantID).
			Msg("Processing fix job")

		report, err := audit.Analyze(ctx, repo, fixJob.TenantID)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", fixJob.JobID).
				Str("tenant_id", fixJob.TenantID).
				Msg("Analyze failed")
			return err
		}

		flagged := report.WithDuplicates
		if len(fixJob.TransactionIDs) > 0 {
			selected := make(map[string]bool, len(fixJob.TransactionIDs))
			for _, id := range fixJob.TransactionIDs {
				selected[id] = true
			}
			filtered := flagged[:0:0]
			for _, entry := range flagged {
				if selected[entry.Transaction.ID] {
					filtered = append(filtered, entry)
				}
			}
			flagged = filtered
		}

		result, err := audit.Fix(ctx, repo, fixJob.TenantID, flagged)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", fixJob.JobID).
				Str("tenant_id", fixJob.TenantID).
				Msg("Fix failed")
			return err
		}
		fixJob.FixedCount = result.Fixed

		log.Info().
			Str("job_id", fixJob.JobID).
			Str("tenant_id", fixJob.TenantID).
			Int("fixed", result.Fixed).
			Int("failed", len(result.Failures)).
			Msg("Fix job completed")

		if len(result.Failures) > 0 {
			return fmt.Errorf("%d of %d rewrites failed", len(result.Failures), result.Requested)
		}

		return nil
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for the in-flight job
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Close the queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
