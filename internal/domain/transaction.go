package domain

import (
	"errors"
	"math/big"
	"strings"
	"time"
	"unicode"
)

// ErrTenantRequired is returned when an operation is invoked without a
// tenant identifier. No store access happens in that case.
var ErrTenantRequired = errors.New("tenant id is required")

// ErrAccountRequired is returned when a dashboard aggregation is invoked
// without a designated operating account.
var ErrAccountRequired = errors.New("operating account is required")

// EntityType identifies which collection a matched entity belongs to.
// The set is closed; anything else is rejected at the store boundary.
type EntityType string

const (
	EntityParticipant EntityType = "participant"
	EntityExpense     EntityType = "expense"
	EntityEvent       EntityType = "event"
	EntityMember      EntityType = "member"
	EntityDemand      EntityType = "demand"
	EntityInscription EntityType = "inscription"
)

// EntityTypes lists all valid entity types in a stable order.
var EntityTypes = []EntityType{
	EntityParticipant,
	EntityExpense,
	EntityEvent,
	EntityMember,
	EntityDemand,
	EntityInscription,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityParticipant, EntityExpense, EntityEvent, EntityMember, EntityDemand, EntityInscription:
		return true
	}
	return false
}

// MatchedEntity links a transaction to a domain object (member, expense,
// event, ...). EntityName is a denormalized display label and is not part
// of the link's identity.
type MatchedEntity struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	EntityName string     `json:"entity_name,omitempty"`
}

// Key returns the identity of the link. Two entries with the same key on
// one transaction are a duplicate link.
func (m MatchedEntity) Key() string {
	return string(m.EntityType) + ":" + m.EntityID
}

// Transaction is one bank transaction within a tenant.
type Transaction struct {
	ID             string
	TenantID       string
	SequenceNumber string // human-readable ordering key, not unique

	Amount        *big.Rat // positive = credit/revenue, negative = debit/expense
	ExecutionDate time.Time

	Account          string // IBAN-like, whitespace-insensitive equality
	CounterpartyName string
	Communication    string

	// IsParent marks a ventilated transaction that has been split into
	// children; parents are excluded from aggregate totals.
	IsParent bool

	MatchedEntities []MatchedEntity
}

// NormalizeAccount strips all whitespace from an account identifier so
// "BE26 0000 0000 0000" and "BE26000000000000" compare equal.
func NormalizeAccount(account string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, account)
}

// SameAccount reports whether two account identifiers are equal after
// normalization.
func SameAccount(a, b string) bool {
	return NormalizeAccount(a) == NormalizeAccount(b)
}

// DedupeMatched removes duplicate links, keeping for each key the entry
// at the smallest original index and preserving the relative order of the
// survivors. The input slice is not modified.
func DedupeMatched(entities []MatchedEntity) []MatchedEntity {
	if len(entities) < 2 {
		return entities
	}

	seen := make(map[string]bool, len(entities))
	out := make([]MatchedEntity, 0, len(entities))
	for _, e := range entities {
		key := e.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// MergeMatched combines existing links with newly computed ones and
// de-duplicates the result. Existing links come first, so a re-match
// never reorders or drops what is already stored.
func MergeMatched(existing, fresh []MatchedEntity) []MatchedEntity {
	merged := make([]MatchedEntity, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	merged = append(merged, fresh...)
	return DedupeMatched(merged)
}
