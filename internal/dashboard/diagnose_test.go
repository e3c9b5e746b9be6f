package dashboard

import (
	"math/big"
	"testing"
)

func summaryWith(revenue, expenses string) *Summary {
	rev := rat(revenue)
	exp := rat(expenses)
	return &Summary{
		TenantID:         "club-1",
		OperatingAccount: "BE26000000000000",
		Revenue:          rev,
		Expenses:         exp,
		Net:              new(big.Rat).Sub(rev, exp),
	}
}

func TestDiagnose_SurplusInStore(t *testing.T) {
	summary := summaryWith("57998.66", "66993.25")
	ref := ReferenceTotals{
		Revenue:          rat("57291.66"),
		Expenses:         rat("68559.97"),
		TransactionCount: 955,
	}

	d := Diagnose(summary, 960, ref)

	if d.RevenueDelta.Cmp(rat("707.00")) != 0 {
		t.Errorf("RevenueDelta = %s, want +707.00", d.RevenueDelta.FloatString(2))
	}
	if d.ExpensesDelta.Cmp(rat("-1566.72")) != 0 {
		t.Errorf("ExpensesDelta = %s, want -1566.72", d.ExpensesDelta.FloatString(2))
	}
	if d.CountDelta != 5 {
		t.Errorf("CountDelta = %d, want +5", d.CountDelta)
	}
	if d.Consistent {
		t.Error("Expected a discrepancy to be reported")
	}

	if len(d.Hypotheses) != 2 {
		t.Fatalf("Expected both hypotheses, got %d", len(d.Hypotheses))
	}
	lead := d.Hypotheses[0]
	if lead.Code != HypothesisSurplusInStore || !lead.Leading {
		t.Errorf("Leading hypothesis = %+v, want surplus_in_store", lead)
	}
	if d.Hypotheses[1].Code != HypothesisInclusionRules || d.Hypotheses[1].Leading {
		t.Errorf("Second hypothesis = %+v, want non-leading inclusion_rule_mismatch", d.Hypotheses[1])
	}
}

func TestDiagnose_MissingInStore(t *testing.T) {
	summary := summaryWith("100", "50")
	ref := ReferenceTotals{
		Revenue:          rat("150"),
		Expenses:         rat("50"),
		TransactionCount: 12,
	}

	d := Diagnose(summary, 10, ref)

	if d.CountDelta != -2 {
		t.Errorf("CountDelta = %d, want -2", d.CountDelta)
	}
	if d.Hypotheses[0].Code != HypothesisMissingInStore || !d.Hypotheses[0].Leading {
		t.Errorf("Leading hypothesis = %+v, want missing_in_store", d.Hypotheses[0])
	}
}

func TestDiagnose_InclusionRuleMismatch(t *testing.T) {
	// Counts agree but totals do not: the filter, not the import, leads.
	summary := summaryWith("900", "400")
	ref := ReferenceTotals{
		Revenue:          rat("1000"),
		Expenses:         rat("400"),
		TransactionCount: 20,
	}

	d := Diagnose(summary, 20, ref)

	if d.CountDelta != 0 {
		t.Errorf("CountDelta = %d, want 0", d.CountDelta)
	}
	if d.Hypotheses[0].Code != HypothesisInclusionRules || !d.Hypotheses[0].Leading {
		t.Errorf("Leading hypothesis = %+v, want inclusion_rule_mismatch", d.Hypotheses[0])
	}
}

func TestDiagnose_Consistent(t *testing.T) {
	summary := summaryWith("100.50", "40.25")
	ref := ReferenceTotals{
		Revenue:          rat("100.50"),
		Expenses:         rat("40.25"),
		TransactionCount: 3,
	}

	d := Diagnose(summary, 3, ref)

	if !d.Consistent {
		t.Error("Expected consistent diagnosis")
	}
	if len(d.Hypotheses) != 0 {
		t.Errorf("Expected no hypotheses, got %+v", d.Hypotheses)
	}
	if d.NetDelta.Sign() != 0 {
		t.Errorf("NetDelta = %s, want 0", d.NetDelta.FloatString(2))
	}
}
