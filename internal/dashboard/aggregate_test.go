package dashboard

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/calycompta/compta-core/internal/domain"
	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

type mockReader struct {
	txs []domain.Transaction
}

func (m *mockReader) ListTransactions(ctx context.Context, tenantID string, rng *infra.DateRange) ([]domain.Transaction, error) {
	return m.txs, nil
}

func rat(f string) *big.Rat {
	r, ok := new(big.Rat).SetString(f)
	if !ok {
		panic("bad rat literal: " + f)
	}
	return r
}

func testPeriod() Period {
	return Period{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestAggregate(t *testing.T) {
	store := &mockReader{txs: []domain.Transaction{
		{ID: "t1", Amount: rat("100"), Account: "BE26000000000000"},
		{ID: "t2", Amount: rat("-40"), Account: "BE26000000000000", IsParent: true},
		{ID: "t3", Amount: rat("-15"), Account: "BE99000000000000"},
	}}

	summary, err := Aggregate(context.Background(), store, "club-1", testPeriod(), "BE26 0000 0000 0000")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if summary.Revenue.Cmp(rat("100")) != 0 {
		t.Errorf("Revenue = %s, want 100", summary.Revenue.FloatString(2))
	}
	if summary.Expenses.Sign() != 0 {
		t.Errorf("Expenses = %s, want 0", summary.Expenses.FloatString(2))
	}
	if summary.Net.Cmp(rat("100")) != 0 {
		t.Errorf("Net = %s, want 100", summary.Net.FloatString(2))
	}
	if summary.CountIncluded != 1 {
		t.Errorf("CountIncluded = %d, want 1", summary.CountIncluded)
	}

	if summary.CountExcluded != 2 || len(summary.Excluded) != 2 {
		t.Fatalf("Expected 2 excluded transactions, got %d", summary.CountExcluded)
	}
	if summary.Excluded[0].Transaction.ID != "t2" || summary.Excluded[0].Reason != ReasonVentilatedParent {
		t.Errorf("Excluded[0] = %s/%s", summary.Excluded[0].Transaction.ID, summary.Excluded[0].Reason)
	}
	if summary.Excluded[1].Transaction.ID != "t3" || summary.Excluded[1].Reason != ReasonWrongAccount {
		t.Errorf("Excluded[1] = %s/%s", summary.Excluded[1].Transaction.ID, summary.Excluded[1].Reason)
	}
	if summary.ExpensesExcluded.Cmp(rat("55")) != 0 {
		t.Errorf("ExpensesExcluded = %s, want 55", summary.ExpensesExcluded.FloatString(2))
	}
}

func TestAggregate_ParentRuleWinsOverAccount(t *testing.T) {
	// A ventilated parent on the wrong account is reported as a parent:
	// the first matching rule wins.
	store := &mockReader{txs: []domain.Transaction{
		{ID: "t1", Amount: rat("10"), Account: "BE99000000000000", IsParent: true},
	}}

	summary, err := Aggregate(context.Background(), store, "club-1", testPeriod(), "BE26000000000000")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if summary.Excluded[0].Reason != ReasonVentilatedParent {
		t.Errorf("Reason = %s, want %s", summary.Excluded[0].Reason, ReasonVentilatedParent)
	}
}

func TestAggregate_ZeroAmount(t *testing.T) {
	store := &mockReader{txs: []domain.Transaction{
		{ID: "t1", Amount: new(big.Rat), Account: "BE26000000000000"},
	}}

	summary, err := Aggregate(context.Background(), store, "club-1", testPeriod(), "BE26000000000000")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if summary.CountIncluded != 1 {
		t.Errorf("CountIncluded = %d, want 1", summary.CountIncluded)
	}
	if summary.Revenue.Sign() != 0 || summary.Expenses.Sign() != 0 {
		t.Error("Zero-amount transaction must not move any total")
	}
}

func TestAggregate_Exclusivity(t *testing.T) {
	store := &mockReader{txs: []domain.Transaction{
		{ID: "a", Amount: rat("5"), Account: "BE26 0000 0000 0000"},
		{ID: "b", Amount: rat("5"), Account: "BE26000000000000", IsParent: true},
		{ID: "c", Amount: rat("5"), Account: "BE77000000000000"},
		{ID: "d", Amount: rat("-5"), Account: "BE26000000000000"},
	}}

	summary, err := Aggregate(context.Background(), store, "club-1", testPeriod(), "BE26000000000000")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if summary.CountIncluded+summary.CountExcluded != len(store.txs) {
		t.Errorf("Included %d + excluded %d != %d", summary.CountIncluded, summary.CountExcluded, len(store.txs))
	}
	for _, ex := range summary.Excluded {
		tx := ex.Transaction
		onAccount := domain.SameAccount(tx.Account, "BE26000000000000")
		if !tx.IsParent && onAccount {
			t.Errorf("Transaction %s excluded but passes both rules", tx.ID)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	store := &mockReader{txs: []domain.Transaction{
		{ID: "t1", Amount: rat("123.45"), Account: "BE26000000000000"},
		{ID: "t2", Amount: rat("-67.89"), Account: "BE26000000000000"},
	}}

	first, err := Aggregate(context.Background(), store, "club-1", testPeriod(), "BE26000000000000")
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	second, err := Aggregate(context.Background(), store, "club-1", testPeriod(), "BE26000000000000")
	if err != nil {
		t.Fatalf("Second aggregate failed: %v", err)
	}

	if first.Revenue.Cmp(second.Revenue) != 0 ||
		first.Expenses.Cmp(second.Expenses) != 0 ||
		first.Net.Cmp(second.Net) != 0 ||
		first.CountIncluded != second.CountIncluded {
		t.Error("Repeated aggregation over unchanged data diverged")
	}
}

func TestAggregate_NotConfigured(t *testing.T) {
	store := &mockReader{}

	if _, err := Aggregate(context.Background(), store, "", testPeriod(), "BE26"); err != domain.ErrTenantRequired {
		t.Errorf("Expected ErrTenantRequired, got %v", err)
	}
	if _, err := Aggregate(context.Background(), store, "club-1", testPeriod(), ""); err != domain.ErrAccountRequired {
		t.Errorf("Expected ErrAccountRequired, got %v", err)
	}
}
