package ingest

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

// RecordsToRows maps validated statement records into store rows for
// the tenant. Imported transactions start with no entity links; the
// matcher fills those in afterwards.
func RecordsToRows(tenantID string, records []StatementRecord) ([]*infra.TransactionRow, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}

	now := time.Now()
	rows := make([]*infra.TransactionRow, 0, len(records))
	for i, rec := range records {
		if rec.Amount == nil {
			return nil, fmt.Errorf("RecordsToRows: record %d has no amount", i+1)
		}

		row := &infra.TransactionRow{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			SequenceNumber: rec.SequenceNumber,
			Amount:         rec.Amount,
			ExecutionDate:  rec.ExecutionDate,
			Account:        rec.Account,
			IsParent:       rec.IsParent,
			CreatedTS:      now,
		}
		if rec.CounterpartyName != "" {
			row.CounterpartyName = bigquery.NullString{StringVal: rec.CounterpartyName, Valid: true}
		}
		if rec.Communication != "" {
			row.Communication = bigquery.NullString{StringVal: rec.Communication, Valid: true}
		}

		rows = append(rows, row)
	}

	return rows, nil
}
