// Package dashboard computes period-scoped financial summaries over a
// tenant's transactions and diagnoses divergences from externally
// trusted statement totals.
package dashboard

import (
	"context"
	"math/big"
	"time"

	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

// Reader is the read-only slice of the transaction store the dashboard
// needs.
type Reader interface {
	ListTransactions(ctx context.Context, tenantID string, rng *infra.DateRange) ([]domain.Transaction, error)
}

// Period is an inclusive fiscal date window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExclusionReason explains why a transaction was left out of the
// primary totals.
type ExclusionReason string

const (
	ReasonVentilatedParent ExclusionReason = "ventilated parent transaction"
	ReasonWrongAccount     ExclusionReason = "wrong account"
)

// ExcludedTransaction is one transaction dropped from the primary
// totals, with the first inclusion rule it failed.
type ExcludedTransaction struct {
	Transaction domain.Transaction `json:"transaction"`
	Reason      ExclusionReason    `json:"reason"`
}

// Summary is the aggregate output for one tenant and period. Included
// and excluded sides are reported symmetrically so the discrepancy
// diagnosis can reason about both.
type Summary struct {
	TenantID         string
	Period           Period
	OperatingAccount string

	Revenue       *big.Rat
	Expenses      *big.Rat
	Net           *big.Rat
	CountIncluded int

	RevenueExcluded  *big.Rat
	ExpensesExcluded *big.Rat
	CountExcluded    int
	Excluded         []ExcludedTransaction
}

// Aggregate computes revenue/expense/net totals for the tenant's
// designated operating account over the period. Inclusion rules apply
// in order, first match wins: ventilated parents are excluded, then
// transactions on a different account (whitespace-insensitive IBAN
// comparison). Read-only and idempotent over unchanged data.
func Aggregate(ctx context.Context, store Reader, tenantID string, period Period, operatingAccount string) (*Summary, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}
	if operatingAccount == "" {
		return nil, domain.ErrAccountRequired
	}

	txs, err := store.ListTransactions(ctx, tenantID, &infra.DateRange{Start: period.Start, End: period.End})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TenantID:         tenantID,
		Period:           period,
		OperatingAccount: operatingAccount,
		Revenue:          new(big.Rat),
		Expenses:         new(big.Rat),
		Net:              new(big.Rat),
		RevenueExcluded:  new(big.Rat),
		ExpensesExcluded: new(big.Rat),
	}

	account := domain.NormalizeAccount(operatingAccount)

	for _, tx := range txs {
		var reason ExclusionReason
		switch {
		case tx.IsParent:
			reason = ReasonVentilatedParent
		case domain.NormalizeAccount(tx.Account) != account:
			reason = ReasonWrongAccount
		}

		amount := tx.Amount
		if amount == nil {
			amount = new(big.Rat)
		}

		if reason != "" {
			summary.CountExcluded++
			summary.Excluded = append(summary.Excluded, ExcludedTransaction{Transaction: tx, Reason: reason})
			switch amount.Sign() {
			case 1:
				summary.RevenueExcluded.Add(summary.RevenueExcluded, amount)
			case -1:
				summary.ExpensesExcluded.Sub(summary.ExpensesExcluded, amount)
			}
			continue
		}

		summary.CountIncluded++
		switch amount.Sign() {
		case 1:
			summary.Revenue.Add(summary.Revenue, amount)
		case -1:
			summary.Expenses.Sub(summary.Expenses, amount)
		}
	}

	summary.Net.Sub(summary.Revenue, summary.Expenses)

	return summary, nil
}
