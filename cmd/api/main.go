package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/calycompta/compta-core/internal/api/handlers"
	"github.com/calycompta/compta-core/internal/api/middleware"
	"github.com/calycompta/compta-core/internal/audit"
	infraBQ "github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/jobs"
	"github.com/calycompta/compta-core/internal/jobs/inmemory"
	"github.com/calycompta/compta-core/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		port   = flag.String("port", "8080", "HTTP server port")
		bucket = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name for audit report exports (or set GCS_BUCKET env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - audit report exports will be disabled")
	}

	// Initialize repositories
	ctx := context.Background()

	repo, err := infraBQ.NewBigQueryTransactionRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction repository")
	}
	defer repo.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	// Start worker in background to process fix jobs
	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	jobHandler := newFixJobHandler(repo, log)

	// Start job consumer in background
	go func() {
		log.Info().Msg("Starting fix job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Fix job worker stopped with error")
		}
	}()

	// Initialize handlers
	auditHandler := handlers.NewAuditHandler(repo, jobQueue, *bucket, log)
	dashboardHandler := handlers.NewDashboardHandler(repo, log)
	transactionsHandler := handlers.NewTransactionsHandler(repo, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Audit endpoints
	mux.HandleFunc("/api/audit/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			auditHandler.Analyze(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audit/fix", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			auditHandler.Fix(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audit/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			auditHandler.Export(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Dashboard endpoints
	mux.HandleFunc("/api/dashboard/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			dashboardHandler.Summary(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/dashboard/diagnose", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			dashboardHandler.Diagnose(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for the in-flight job
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

// newFixJobHandler builds the worker callback that repairs duplicate
// entity links. The job carries the tenant and, optionally, the
// transaction IDs selected from a prior analyze run; the handler always
// re-analyzes so stale selections cannot rewrite a transaction that was
// already repaired.
func newFixJobHandler(store audit.TransactionStore, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		fixJob, ok := job.(*jobs.FixDuplicatesJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", fixJob.JobID).
			Str("tenant_id", fixJob.TenantID).
			Int("transaction_ids", len(fixJob.TransactionIDs)).
			Msg("Processing fix job")

		report, err := audit.Analyze(ctx, store, fixJob.TenantID)
		if err != nil {
			return fmt.Errorf("fix job %s: analyze: %w", fixJob.JobID, err)
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

		result, err := audit.Fix(ctx, store, fixJob.TenantID, flagged)
		if err != nil {
			return fmt.Errorf("fix job %s: %w", fixJob.JobID, err)
		}
		fixJob.FixedCount = result.Fixed

		log.Info().
			Str("job_id", fixJob.JobID).
			Str("tenant_id", fixJob.TenantID).
			Int("fixed", result.Fixed).
			Int("failed", len(result.Failures)).
			Msg("Fix job completed")

		if len(result.Failures) > 0 {
			return fmt.Errorf("fix job %s: %d of %d rewrites failed", fixJob.JobID, len(result.Failures), result.Requested)
		}

		return nil
	}
}
