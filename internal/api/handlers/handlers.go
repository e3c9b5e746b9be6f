package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/calycompta/compta-core/internal/api/middleware"
	"github.com/calycompta/compta-core/internal/audit"
	"github.com/calycompta/compta-core/internal/domain"
	"github.com/calycompta/compta-core/internal/export"
	"github.com/calycompta/compta-core/internal/jobs"
)

const dateFormat = "2006-01-02"

// AuditHandler handles duplicate-link audit endpoints.
type AuditHandler struct {
	store     audit.TransactionStore
	publisher jobs.Publisher
	bucket    string
	log       zerolog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store audit.TransactionStore, publisher jobs.Publisher, bucket string, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		store:     store,
		publisher: publisher,
		bucket:    bucket,
		log:       log,
	}
}

// Analyze handles GET /api/audit/analyze?tenant=...
func (h *AuditHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := r.URL.Query().Get("tenant")

	report, err := audit.Analyze(ctx, h.store, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantRequired) {
			middleware.WriteError(w, http.StatusBadRequest, "tenant is required")
			return
		}
		h.log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to analyze duplicate links")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to analyze duplicate links")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report.Export())
}

// Fix handles POST /api/audit/fix. The write is irreversible, so the
// request must carry an explicit confirmation; the repair itself runs
// as an asynchronous job.
func (h *AuditHandler) Fix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID       string   `json:"tenant_id"`
		TransactionIDs []string `json:"transaction_ids"`
		Confirm        bool     `json:"confirm"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TenantID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if !req.Confirm {
		middleware.WriteError(w, http.StatusBadRequest, "fix requires explicit confirmation: set confirm=true")
		return
	}

	job := &jobs.FixDuplicatesJob{
		TenantID:       req.TenantID,
		TransactionIDs: req.TransactionIDs,
	}
	if err := h.publisher.PublishFixDuplicates(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Failed to enqueue fix job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue fix job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("tenant_id", req.TenantID).
		Int("transaction_ids", len(req.TransactionIDs)).
		Msg("Fix job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// Export handles POST /api/audit/export: analyze the tenant and upload
// the report document to the configured GCS bucket.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No export bucket configured")
		return
	}

	report, err := audit.Analyze(r.Context(), h.store, req.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantRequired) {
			middleware.WriteError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}
		h.log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Failed to analyze for export")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to analyze for export")
		return
	}

	uri, err := export.UploadReport(r.Context(), h.bucket, report)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Failed to upload audit report")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload audit report")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"uri": uri,
	})
}
