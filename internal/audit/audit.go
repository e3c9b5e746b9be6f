// Package audit detects and repairs duplicate entity links on bank
// transactions. A duplicate link is a repeated (entity_type, entity_id)
// pair within one transaction's matched_entities list; it is always a
// data defect, never a valid business state.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

// TransactionStore is the slice of the transaction store the auditor
// needs. Analyze only reads; Fix also rewrites matched_entities.
type TransactionStore interface {
	ListTransactions(ctx context.Context, tenantID string, rng *infra.DateRange) ([]domain.Transaction, error)
	UpdateMatchedEntities(ctx context.Context, tenantID, transactionID string, entities []domain.MatchedEntity) error
}

// DuplicateInfo describes one duplicated link key on a transaction.
type DuplicateInfo struct {
	Key     string `json:"key"`     // "entity_type:entity_id"
	Indices []int  `json:"indices"` // positions in matched_entities
	Count   int    `json:"count"`
}

// TransactionAudit is one multi-linked transaction with its duplicate
// diagnosis.
type TransactionAudit struct {
	Transaction   domain.Transaction `json:"transaction"`
	LinkCount     int                `json:"link_count"`
	Duplicates    []DuplicateInfo    `json:"duplicates,omitempty"`
	HasDuplicates bool               `json:"has_duplicates"`
}

// Report is the output of Analyze for one tenant.
type Report struct {
	TenantID    string    `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalTransactions     int `json:"total_transactions"`
	TransactionsWithLinks int `json:"transactions_with_links"`

	// MultiLinked holds every transaction with more than one matched
	// entity, duplicate-bearing ones first, then by descending link
	// count.
	MultiLinked []TransactionAudit `json:"multi_linked"`

	// WithDuplicates is the subset of MultiLinked that violates the
	// uniqueness invariant.
	WithDuplicates []TransactionAudit `json:"with_duplicates"`
}

// FindDuplicates groups a transaction's links by key and reports every
// key that occurs more than once. Keys are reported in order of their
// first occurrence.
func FindDuplicates(entities []domain.MatchedEntity) []DuplicateInfo {
	if len(entities) < 2 {
		return nil
	}

	indices := make(map[string][]int, len(entities))
	var order []string
	for i, e := range entities {
		key := e.Key()
		if _, seen := indices[key]; !seen {
			order = append(order, key)
		}
		indices[key] = append(indices[key], i)
	}

	var dups []DuplicateInfo
	for _, key := range order {
		if idx := indices[key]; len(idx) > 1 {
			dups = append(dups, DuplicateInfo{
				Key:     key,
				Indices: idx,
				Count:   len(idx),
			})
		}
	}
	return dups
}

// Analyze loads every transaction of the tenant and reports all
// multi-linked transactions together with the subset carrying duplicate
// links. Pure read, no side effects.
func Analyze(ctx context.Context, store TransactionStore, tenantID string) (*Report, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}

	txs, err := store.ListTransactions(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TenantID:    tenantID,
		GeneratedAt: time.Now().UTC(),
	}
	report.TotalTransactions = len(txs)

	for _, tx := range txs {
		if len(tx.MatchedEntities) > 0 {
			report.TransactionsWithLinks++
		}
		if len(tx.MatchedEntities) <= 1 {
			continue
		}

		entry := TransactionAudit{
			Transaction: tx,
			LinkCount:   len(tx.MatchedEntities),
			Duplicates:  FindDuplicates(tx.MatchedEntities),
		}
		entry.HasDuplicates = len(entry.Duplicates) > 0

		report.MultiLinked = append(report.MultiLinked, entry)
		if entry.HasDuplicates {
			report.WithDuplicates = append(report.WithDuplicates, entry)
		}
	}

	sort.SliceStable(report.MultiLinked, func(i, j int) bool {
		a, b := report.MultiLinked[i], report.MultiLinked[j]
		if a.HasDuplicates != b.HasDuplicates {
			return a.HasDuplicates
		}
		return a.LinkCount > b.LinkCount
	})

	return report, nil
}
