// Package matcher computes candidate associations between bank
// transactions and domain entities (members, expenses, events,
// participants, demands, inscriptions) and persists them on the
// transaction.
package matcher

import (
	"context"
	"strings"

	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

// Matcher produces zero or more entity links for one transaction. The
// result may legitimately contain several entities (one payment can
// fund multiple obligations) but never the same (entity_type,
// entity_id) pair twice.
type Matcher interface {
	Match(ctx context.Context, tx domain.Transaction) ([]domain.MatchedEntity, error)
}

// EntityDirectory gives the matcher read access to the candidate
// entity collections.
type EntityDirectory interface {
	ListEntities(ctx context.Context, tenantID string, entityType domain.EntityType) ([]infra.EntityRef, error)
}

// Store is the write side used when persisting matches.
type Store interface {
	UpdateMatchedEntities(ctx context.Context, tenantID, transactionID string, entities []domain.MatchedEntity) error
}

// RuleMatcher is a heuristic implementation of Matcher: it links
// transactions to entities through the payment communication (reference
// codes, event labels) and the counterparty name (members).
type RuleMatcher struct {
	dir EntityDirectory
}

// NewRuleMatcher creates a rule-based matcher over the given entity
// directory.
func NewRuleMatcher(dir EntityDirectory) *RuleMatcher {
	return &RuleMatcher{dir: dir}
}

// refTypes are the collections whose identifiers double as payment
// reference codes carried in the communication field.
var refTypes = []domain.EntityType{
	domain.EntityInscription,
	domain.EntityDemand,
	domain.EntityExpense,
}

// Match applies the heuristics in a fixed order so repeated runs over
// unchanged data produce the same links:
//  1. reference codes in the communication → inscriptions, demands,
//     expenses;
//  2. counterparty name equal to a member's display name → member;
//  3. event label contained in the communication → event.
//
// The result is de-duplicated before it is returned.
func (m *RuleMatcher) Match(ctx context.Context, tx domain.Transaction) ([]domain.MatchedEntity, error) {
	if tx.TenantID == "" {
		return nil, domain.ErrTenantRequired
	}

	var found []domain.MatchedEntity
	communication := normalizeLabel(tx.Communication)

	for _, et := range refTypes {
		refs, err := m.dir.ListEntities(ctx, tx.TenantID, et)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if ref.ID != "" && strings.Contains(communication, strings.ToUpper(ref.ID)) {
				found = append(found, domain.MatchedEntity{
					EntityType: et,
					EntityID:   ref.ID,
					EntityName: ref.Name,
				})
			}
		}
	}

	if counterparty := normalizeLabel(tx.CounterpartyName); counterparty != "" {
		members, err := m.dir.ListEntities(ctx, tx.TenantID, domain.EntityMember)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			if normalizeLabel(member.Name) == counterparty {
				found = append(found, domain.MatchedEntity{
					EntityType: domain.EntityMember,
					EntityID:   member.ID,
					EntityName: member.Name,
				})
			}
		}
	}

	if communication != "" {
		events, err := m.dir.ListEntities(ctx, tx.TenantID, domain.EntityEvent)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			label := normalizeLabel(event.Name)
			if label != "" && strings.Contains(communication, label) {
				found = append(found, domain.MatchedEntity{
					EntityType: domain.EntityEvent,
					EntityID:   event.ID,
					EntityName: event.Name,
				})
			}
		}
	}

	return domain.DedupeMatched(found), nil
}

// Apply runs the matcher on one transaction and persists the result as
// the merged unique set of existing and fresh links. The stored field is
// replaced in full; blind appends are what created duplicate links in
// the first place. Returns the persisted list.
func Apply(ctx context.Context, store Store, m Matcher, tx domain.Transaction) ([]domain.MatchedEntity, error) {
	fresh, err := m.Match(ctx, tx)
	if err != nil {
		return nil, err
	}

	merged := domain.MergeMatched(tx.MatchedEntities, fresh)
	if sameLinks(merged, tx.MatchedEntities) {
		return tx.MatchedEntities, nil
	}

	if err := store.UpdateMatchedEntities(ctx, tx.TenantID, tx.ID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func sameLinks(a, b []domain.MatchedEntity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}

// normalizeLabel uppercases and collapses inner whitespace so labels
// compare the way bank statements render them.
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
