package matcher

import (
	"context"
	"testing"

	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

type mockDirectory struct {
	entities map[domain.EntityType][]infra.EntityRef
}

func (m *mockDirectory) ListEntities(ctx context.Context, tenantID string, entityType domain.EntityType) ([]infra.EntityRef, error) {
	return m.entities[entityType], nil
}

type mockWriter struct {
	writes int
	last   []domain.MatchedEntity
}

func (m *mockWriter) UpdateMatchedEntities(ctx context.Context, tenantID, transactionID string, entities []domain.MatchedEntity) error {
	m.writes++
	m.last = entities
	return nil
}

func testDirectory() *mockDirectory {
	return &mockDirectory{entities: map[domain.EntityType][]infra.EntityRef{
		domain.EntityMember: {
			{ID: "M1", Name: "Alice Dupont"},
			{ID: "M2", Name: "Bob Martin"},
		},
		domain.EntityInscription: {
			{ID: "INS-2024-0042", Name: "Alice Dupont 2024"},
		},
		domain.EntityEvent: {
			{ID: "EV1", Name: "Sortie Zelande"},
		},
	}}
}

func TestRuleMatcher_ReferenceCode(t *testing.T) {
	m := NewRuleMatcher(testDirectory())
	tx := domain.Transaction{
		ID:            "t1",
		TenantID:      "club-1",
		Communication: "Cotisation ins-2024-0042 merci",
	}

	got, err := m.Match(context.Background(), tx)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(got) != 1 || got[0].Key() != "inscription:INS-2024-0042" {
		t.Errorf("Match = %+v, want inscription link", got)
	}
	if got[0].EntityName != "Alice Dupont 2024" {
		t.Errorf("EntityName = %q, want resolved display label", got[0].EntityName)
	}
}

func TestRuleMatcher_CounterpartyMember(t *testing.T) {
	m := NewRuleMatcher(testDirectory())
	tx := domain.Transaction{
		ID:               "t1",
		TenantID:         "club-1",
		CounterpartyName: "  alice   DUPONT ",
	}

	got, err := m.Match(context.Background(), tx)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(got) != 1 || got[0].Key() != "member:M1" {
		t.Errorf("Match = %+v, want member:M1", got)
	}
}

func TestRuleMatcher_EventLabel(t *testing.T) {
	m := NewRuleMatcher(testDirectory())
	tx := domain.Transaction{
		ID:            "t1",
		TenantID:      "club-1",
		Communication: "Acompte sortie zelande juin",
	}

	got, err := m.Match(context.Background(), tx)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(got) != 1 || got[0].Key() != "event:EV1" {
		t.Errorf("Match = %+v, want event:EV1", got)
	}
}

func TestRuleMatcher_NeverEmitsDuplicates(t *testing.T) {
	dir := testDirectory()
	// Two inscription rows sharing an ID would otherwise match twice.
	dir.entities[domain.EntityInscription] = append(dir.entities[domain.EntityInscription],
		infra.EntityRef{ID: "INS-2024-0042", Name: "stale copy"})

	m := NewRuleMatcher(dir)
	tx := domain.Transaction{
		ID:            "t1",
		TenantID:      "club-1",
		Communication: "INS-2024-0042",
	}

	got, err := m.Match(context.Background(), tx)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, e := range got {
		if seen[e.Key()] {
			t.Fatalf("Matcher emitted duplicate link %s", e.Key())
		}
		seen[e.Key()] = true
	}
}

func TestApply_MergesWithExisting(t *testing.T) {
	m := NewRuleMatcher(testDirectory())
	store := &mockWriter{}
	tx := domain.Transaction{
		ID:               "t1",
		TenantID:         "club-1",
		CounterpartyName: "Alice Dupont",
		MatchedEntities: []domain.MatchedEntity{
			{EntityType: domain.EntityExpense, EntityID: "E9"},
		},
	}

	got, err := Apply(context.Background(), store, m, tx)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if store.writes != 1 {
		t.Fatalf("Expected one write, got %d", store.writes)
	}
	if len(got) != 2 || got[0].Key() != "expense:E9" || got[1].Key() != "member:M1" {
		t.Errorf("Persisted links = %+v", got)
	}
}

func TestApply_NoChangeNoWrite(t *testing.T) {
	m := NewRuleMatcher(testDirectory())
	store := &mockWriter{}
	tx := domain.Transaction{
		ID:               "t1",
		TenantID:         "club-1",
		CounterpartyName: "Alice Dupont",
		MatchedEntities: []domain.MatchedEntity{
			{EntityType: domain.EntityMember, EntityID: "M1", EntityName: "Alice Dupont"},
		},
	}

	got, err := Apply(context.Background(), store, m, tx)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if store.writes != 0 {
		t.Errorf("Expected no write when links are unchanged, got %d", store.writes)
	}
	if len(got) != 1 {
		t.Errorf("Links = %+v", got)
	}
}

func TestApply_RepairsExistingDuplicates(t *testing.T) {
	m := NewRuleMatcher(testDirectory())
	store := &mockWriter{}
	tx := domain.Transaction{
		ID:       "t1",
		TenantID: "club-1",
		MatchedEntities: []domain.MatchedEntity{
			{EntityType: domain.EntityMember, EntityID: "M1"},
			{EntityType: domain.EntityMember, EntityID: "M1"},
		},
	}

	got, err := Apply(context.Background(), store, m, tx)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if store.writes != 1 {
		t.Fatalf("Expected the merged-unique rewrite, got %d writes", store.writes)
	}
	if len(got) != 1 || got[0].Key() != "member:M1" {
		t.Errorf("Persisted links = %+v, want deduplicated member:M1", got)
	}
}
