package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/calycompta/compta-core/internal/api/middleware"
	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/jobs"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo infra.TransactionRepository
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo infra.TransactionRepository, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo: repo,
		log:  log,
	}
}

type transactionEntry struct {
	ID               string                 `json:"id"`
	SequenceNumber   string                 `json:"sequence_number,omitempty"`
	Amount           string                 `json:"amount"`
	ExecutionDate    string                 `json:"execution_date"`
	Account          string                 `json:"account"`
	CounterpartyName string                 `json:"counterparty_name,omitempty"`
	Communication    string                 `json:"communication,omitempty"`
	IsParent         bool                   `json:"is_parent"`
	MatchedEntities  []domain.MatchedEntity `json:"matched_entities"`
}

func renderTransaction(tx domain.Transaction) transactionEntry {
	amount := "0.00"
	if tx.Amount != nil {
		amount = tx.Amount.FloatString(2)
	}
	matched := tx.MatchedEntities
	if matched == nil {
		matched = []domain.MatchedEntity{}
	}
	return transactionEntry{
		ID:               tx.ID,
		SequenceNumber:   tx.SequenceNumber,
		Amount:           amount,
		ExecutionDate:    tx.ExecutionDate.Format(dateFormat),
		Account:          tx.Account,
		CounterpartyName: tx.CounterpartyName,
		Communication:    tx.Communication,
		IsParent:         tx.IsParent,
		MatchedEntities:  matched,
	}
}

// ListTransactions handles GET /api/transactions?tenant=&start_date=&end_date=
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	tenantID := query.Get("tenant")
	if tenantID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	var rng *infra.DateRange
	startStr := query.Get("start_date")
	endStr := query.Get("end_date")
	if startStr != "" || endStr != "" {
		period, err := parsePeriod(startStr, endStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		rng = &infra.DateRange{Start: period.Start, End: period.End}
	}

	transactions, err := h.repo.ListTransactions(ctx, tenantID, rng)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	entries := make([]transactionEntry, 0, len(transactions))
	for _, tx := range transactions {
		entries = append(entries, renderTransaction(tx))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
		"count":        len(entries),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		TenantID: query.Get("tenant"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
