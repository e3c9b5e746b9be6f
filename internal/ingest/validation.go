package ingest

import (
	"fmt"

	"github.com/calycompta/compta-core/internal/domain"
)

// ValidateRecords rejects a statement whose records the store cannot
// hold. The whole file is rejected on the first bad record; a partial
// import would leave the period totals silently wrong.
func ValidateRecords(records []StatementRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("ValidateRecords: statement contains no records")
	}

	for i, rec := range records {
		if domain.NormalizeAccount(rec.Account) == "" {
			return fmt.Errorf("ValidateRecords: record %d: account is required", i+1)
		}
		if rec.ExecutionDate.IsZero() {
			return fmt.Errorf("ValidateRecords: record %d: execution date is required", i+1)
		}
		if rec.Amount == nil {
			return fmt.Errorf("ValidateRecords: record %d: amount is required", i+1)
		}
	}

	return nil
}
