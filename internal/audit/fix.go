package audit

import (
	"context"

	"github.com/calycompta/compta-core/internal/domain"
	"github.com/calycompta/compta-core/internal/logger"
)

// FixFailure records one transaction whose rewrite failed. The
// transaction keeps its duplicates and reappears on the next Analyze.
type FixFailure struct {
	TransactionID  string `json:"transaction_id"`
	SequenceNumber string `json:"sequence_number"`
	LinksBefore    int    `json:"links_before"`
	LinksAfter     int    `json:"links_after"`
	Error          string `json:"error"`
}

// FixResult summarizes one Fix run.
type FixResult struct {
	Requested int          `json:"requested"`
	Fixed     int          `json:"fixed"`
	Failures  []FixFailure `json:"failures,omitempty"`
}

// Fix rewrites each flagged transaction's matched_entities, keeping only
// the first occurrence of each link key and preserving the order of the
// survivors. Transactions are written one at a time; a failed write is
// logged and recorded but does not stop the remaining ones, and prior
// successful writes stay committed. Callers are expected to obtain
// explicit confirmation before invoking Fix.
func Fix(ctx context.Context, store TransactionStore, tenantID string, flagged []TransactionAudit) (*FixResult, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}

	log := logger.FromContext(ctx)
	result := &FixResult{Requested: len(flagged)}

	for _, entry := range flagged {
		tx := entry.Transaction
		cleaned := domain.DedupeMatched(tx.MatchedEntities)
		if len(cleaned) == len(tx.MatchedEntities) {
			// Nothing to repair; never write when the list is already clean.
			continue
		}

		if err := store.UpdateMatchedEntities(ctx, tenantID, tx.ID, cleaned); err != nil {
			log.Error().
				Err(err).
				Str("transaction_id", tx.ID).
				Str("sequence_number", tx.SequenceNumber).
				Int("links_before", len(tx.MatchedEntities)).
				Int("links_after", len(cleaned)).
				Msg("Failed to rewrite matched entities")
			result.Failures = append(result.Failures, FixFailure{
				TransactionID:  tx.ID,
				SequenceNumber: tx.SequenceNumber,
				LinksBefore:    len(tx.MatchedEntities),
				LinksAfter:     len(cleaned),
				Error:          err.Error(),
			})
			continue
		}

		log.Info().
			Str("transaction_id", tx.ID).
			Str("sequence_number", tx.SequenceNumber).
			Int("links_before", len(tx.MatchedEntities)).
			Int("links_after", len(cleaned)).
			Msg("Removed duplicate entity links")
		result.Fixed++
	}

	return result, nil
}
