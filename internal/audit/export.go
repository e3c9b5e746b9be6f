package audit

import (
	"time"

	"github.com/calycompta/compta-core/internal/domain"
)

// ExportStatistics carries the tenant-scoped counters of an audit
// report.
type ExportStatistics struct {
	TotalTransactions     int `json:"totalTransactions"`
	TransactionsWithLinks int `json:"transactionsWithLinks"`
	MultiLinked           int `json:"multiLinked"`
	WithDuplicates        int `json:"withDuplicates"`
}

// ExportTransaction is one multi-linked transaction in the export
// document. Amounts are rendered as fixed-point strings.
type ExportTransaction struct {
	ID              string                 `json:"id"`
	SequenceNumber  string                 `json:"sequenceNumber,omitempty"`
	Amount          string                 `json:"amount"`
	ExecutionDate   time.Time              `json:"executionDate"`
	Account         string                 `json:"account"`
	LinkCount       int                    `json:"linkCount"`
	HasDuplicates   bool                   `json:"hasDuplicates"`
	Duplicates      []DuplicateInfo        `json:"duplicates,omitempty"`
	MatchedEntities []domain.MatchedEntity `json:"matchedEntities"`
}

// ExportDocument is the offline-review serialization of an audit
// report.
type ExportDocument struct {
	GeneratedAt  time.Time           `json:"generatedAt"`
	TenantID     string              `json:"tenantId"`
	Statistics   ExportStatistics    `json:"statistics"`
	Transactions []ExportTransaction `json:"transactions"`
}

// Export converts a report into its serializable document form.
func (r *Report) Export() *ExportDocument {
	doc := &ExportDocument{
		GeneratedAt: r.GeneratedAt,
		TenantID:    r.TenantID,
		Statistics: ExportStatistics{
			TotalTransactions:     r.TotalTransactions,
			TransactionsWithLinks: r.TransactionsWithLinks,
			MultiLinked:           len(r.MultiLinked),
			WithDuplicates:        len(r.WithDuplicates),
		},
		Transactions: make([]ExportTransaction, 0, len(r.MultiLinked)),
	}

	for _, entry := range r.MultiLinked {
		tx := entry.Transaction
		amount := ""
		if tx.Amount != nil {
			amount = tx.Amount.FloatString(2)
		}
		doc.Transactions = append(doc.Transactions, ExportTransaction{
			ID:              tx.ID,
			SequenceNumber:  tx.SequenceNumber,
			Amount:          amount,
			ExecutionDate:   tx.ExecutionDate,
			Account:         tx.Account,
			LinkCount:       entry.LinkCount,
			HasDuplicates:   entry.HasDuplicates,
			Duplicates:      entry.Duplicates,
			MatchedEntities: tx.MatchedEntities,
		})
	}

	return doc
}
