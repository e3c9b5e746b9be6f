package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/calycompta/compta-core/internal/api/middleware"
	"github.com/calycompta/compta-core/internal/dashboard"
	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

// DashboardStore is the store surface the dashboard endpoints need.
type DashboardStore interface {
	ListTransactions(ctx context.Context, tenantID string, rng *infra.DateRange) ([]domain.Transaction, error)
	CountTransactions(ctx context.Context, tenantID string, rng *infra.DateRange) (int, error)
}

// DashboardHandler handles aggregate and discrepancy endpoints.
type DashboardHandler struct {
	store DashboardStore
	log   zerolog.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(store DashboardStore, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		store: store,
		log:   log,
	}
}

type excludedEntry struct {
	ID             string `json:"id"`
	SequenceNumber string `json:"sequence_number,omitempty"`
	Amount         string `json:"amount"`
	Account        string `json:"account"`
	Reason         string `json:"reason"`
}

type summaryResponse struct {
	TenantID         string `json:"tenant_id"`
	Start            string `json:"start"`
	End              string `json:"end"`
	OperatingAccount string `json:"operating_account"`

	Revenue       string `json:"revenue"`
	Expenses      string `json:"expenses"`
	Net           string `json:"net"`
	CountIncluded int    `json:"count_included"`

	RevenueExcluded  string          `json:"revenue_excluded"`
	ExpensesExcluded string          `json:"expenses_excluded"`
	CountExcluded    int             `json:"count_excluded"`
	Excluded         []excludedEntry `json:"excluded"`
}

func renderSummary(s *dashboard.Summary) summaryResponse {
	resp := summaryResponse{
		TenantID:         s.TenantID,
		Start:            s.Period.Start.Format(dateFormat),
		End:              s.Period.End.Format(dateFormat),
		OperatingAccount: s.OperatingAccount,
		Revenue:          s.Revenue.FloatString(2),
		Expenses:         s.Expenses.FloatString(2),
		Net:              s.Net.FloatString(2),
		CountIncluded:    s.CountIncluded,
		RevenueExcluded:  s.RevenueExcluded.FloatString(2),
		ExpensesExcluded: s.ExpensesExcluded.FloatString(2),
		CountExcluded:    s.CountExcluded,
		Excluded:         make([]excludedEntry, 0, len(s.Excluded)),
	}
	for _, ex := range s.Excluded {
		amount := "0.00"
		if ex.Transaction.Amount != nil {
			amount = ex.Transaction.Amount.FloatString(2)
		}
		resp.Excluded = append(resp.Excluded, excludedEntry{
			ID:             ex.Transaction.ID,
			SequenceNumber: ex.Transaction.SequenceNumber,
			Amount:         amount,
			Account:        ex.Transaction.Account,
			Reason:         string(ex.Reason),
		})
	}
	return resp
}

// Summary handles GET /api/dashboard/summary?tenant=&start=&end=&account=
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant")
	account := q.Get("account")

	period, err := parsePeriod(q.Get("start"), q.Get("end"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := dashboard.Aggregate(r.Context(), h.store, tenantID, period, account)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTenantRequired):
			middleware.WriteError(w, http.StatusBadRequest, "tenant is required")
		case errors.Is(err, domain.ErrAccountRequired):
			middleware.WriteError(w, http.StatusBadRequest, "account is required")
		default:
			h.log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to aggregate dashboard totals")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to aggregate dashboard totals")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, renderSummary(summary))
}

type hypothesisEntry struct {
	Code    string `json:"code"`
	Detail  string `json:"detail"`
	Leading bool   `json:"leading"`
}

type diagnosisResponse struct {
	Summary summaryResponse `json:"summary"`

	RevenueDelta  string `json:"revenue_delta"`
	ExpensesDelta string `json:"expenses_delta"`
	NetDelta      string `json:"net_delta"`
	CountDelta    int    `json:"count_delta"`
	StoredCount   int    `json:"stored_count"`

	Consistent bool              `json:"consistent"`
	Hypotheses []hypothesisEntry `json:"hypotheses"`
}

// Diagnose handles POST /api/dashboard/diagnose: aggregate the period
// and compare against externally supplied reference totals. Purely
// informational; no data is changed.
func (h *DashboardHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID  string `json:"tenant_id"`
		Start     string `json:"start"`
		End       string `json:"end"`
		Account   string `json:"account"`
		Reference struct {
			Revenue          string `json:"revenue"`
			Expenses         string `json:"expenses"`
			TransactionCount int    `json:"transaction_count"`
		} `json:"reference"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	period, err := parsePeriod(req.Start, req.End)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	refRevenue, err := parseAmount(req.Reference.Revenue)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid reference revenue")
		return
	}
	refExpenses, err := parseAmount(req.Reference.Expenses)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid reference expenses")
		return
	}

	ctx := r.Context()

	summary, err := dashboard.Aggregate(ctx, h.store, req.TenantID, period, req.Account)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTenantRequired):
			middleware.WriteError(w, http.StatusBadRequest, "tenant_id is required")
		case errors.Is(err, domain.ErrAccountRequired):
			middleware.WriteError(w, http.StatusBadRequest, "account is required")
		default:
			h.log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Failed to aggregate for diagnosis")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to aggregate for diagnosis")
		}
		return
	}

	storedCount, err := h.store.CountTransactions(ctx, req.TenantID, &infra.DateRange{Start: period.Start, End: period.End})
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Failed to count stored transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to count stored transactions")
		return
	}

	diagnosis := dashboard.Diagnose(summary, storedCount, dashboard.ReferenceTotals{
		Revenue:          refRevenue,
		Expenses:         refExpenses,
		TransactionCount: req.Reference.TransactionCount,
	})

	resp := diagnosisResponse{
		Summary:       renderSummary(summary),
		RevenueDelta:  diagnosis.RevenueDelta.FloatString(2),
		ExpensesDelta: diagnosis.ExpensesDelta.FloatString(2),
		NetDelta:      diagnosis.NetDelta.FloatString(2),
		CountDelta:    diagnosis.CountDelta,
		StoredCount:   storedCount,
		Consistent:    diagnosis.Consistent,
		Hypotheses:    make([]hypothesisEntry, 0, len(diagnosis.Hypotheses)),
	}
	for _, hyp := range diagnosis.Hypotheses {
		resp.Hypotheses = append(resp.Hypotheses, hypothesisEntry(hyp))
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

func parsePeriod(start, end string) (dashboard.Period, error) {
	if start == "" || end == "" {
		return dashboard.Period{}, fmt.Errorf("start and end dates are required (format %s)", dateFormat)
	}
	s, err := time.Parse(dateFormat, start)
	if err != nil {
		return dashboard.Period{}, fmt.Errorf("invalid start date %q", start)
	}
	e, err := time.Parse(dateFormat, end)
	if err != nil {
		return dashboard.Period{}, fmt.Errorf("invalid end date %q", end)
	}
	if e.Before(s) {
		return dashboard.Period{}, fmt.Errorf("end date precedes start date")
	}
	// Inclusive end of day.
	e = e.Add(24*time.Hour - time.Nanosecond)
	return dashboard.Period{Start: s, End: e}, nil
}

func parseAmount(s string) (*big.Rat, error) {
	if s == "" {
		return new(big.Rat), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return r, nil
}
