package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/calycompta/compta-core/internal/domain"
)

// MatchedEntityRow is one entry of the repeated matched_entities record
// on a transaction row.
type MatchedEntityRow struct {
	EntityType string `bigquery:"entity_type"` // REQUIRED
	EntityID   string `bigquery:"entity_id"`   // REQUIRED
	EntityName string `bigquery:"entity_name"` // NULLABLE (empty = not resolved)
}

// TransactionRow maps one row of calycompta.transactions.
type TransactionRow struct {
	ID       string `bigquery:"id"`        // REQUIRED
	TenantID string `bigquery:"tenant_id"` // REQUIRED

	SequenceNumber string `bigquery:"sequence_number"` // NULLABLE, not unique

	Amount        *big.Rat  `bigquery:"amount"`         // REQUIRED NUMERIC
	ExecutionDate time.Time `bigquery:"execution_date"` // REQUIRED TIMESTAMP

	Account          string              `bigquery:"account"` // REQUIRED
	CounterpartyName bigquery.NullString `bigquery:"counterparty_name"`
	Communication    bigquery.NullString `bigquery:"communication"`

	IsParent bool `bigquery:"is_parent"`

	MatchedEntities []MatchedEntityRow `bigquery:"matched_entities"` // REPEATED RECORD

	CreatedTS time.Time              `bigquery:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// ToDomain converts a store row into the domain transaction.
func (r *TransactionRow) ToDomain() domain.Transaction {
	tx := domain.Transaction{
		ID:             r.ID,
		TenantID:       r.TenantID,
		SequenceNumber: r.SequenceNumber,
		Amount:         r.Amount,
		ExecutionDate:  r.ExecutionDate,
		Account:        r.Account,
		IsParent:       r.IsParent,
	}
	if r.CounterpartyName.Valid {
		tx.CounterpartyName = r.CounterpartyName.StringVal
	}
	if r.Communication.Valid {
		tx.Communication = r.Communication.StringVal
	}
	if len(r.MatchedEntities) > 0 {
		tx.MatchedEntities = make([]domain.MatchedEntity, 0, len(r.MatchedEntities))
		for _, me := range r.MatchedEntities {
			tx.MatchedEntities = append(tx.MatchedEntities, domain.MatchedEntity{
				EntityType: domain.EntityType(me.EntityType),
				EntityID:   me.EntityID,
				EntityName: me.EntityName,
			})
		}
	}
	return tx
}

// matchedEntityParams converts domain links into the query-parameter
// shape used by the matched_entities UPDATE.
func matchedEntityParams(entities []domain.MatchedEntity) []MatchedEntityRow {
	rows := make([]MatchedEntityRow, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, MatchedEntityRow{
			EntityType: string(e.EntityType),
			EntityID:   e.EntityID,
			EntityName: e.EntityName,
		})
	}
	return rows
}
