package dashboard

import (
	"fmt"
	"math/big"
)

// ReferenceTotals are externally trusted period totals, typically taken
// from an imported bank statement file. Expenses is an absolute value,
// like the computed side.
type ReferenceTotals struct {
	Revenue          *big.Rat
	Expenses         *big.Rat
	TransactionCount int
}

// Hypothesis codes for a nonzero delta.
const (
	HypothesisSurplusInStore = "surplus_in_store"
	HypothesisMissingInStore = "missing_in_store"
	HypothesisInclusionRules = "inclusion_rule_mismatch"
)

// Hypothesis is one candidate explanation for a discrepancy. Exactly
// one hypothesis is flagged as leading when there is a discrepancy at
// all.
type Hypothesis struct {
	Code    string `json:"code"`
	Detail  string `json:"detail"`
	Leading bool   `json:"leading"`
}

// Diagnosis compares computed totals against the reference. Purely
// informational; nothing is ever auto-corrected.
type Diagnosis struct {
	RevenueDelta  *big.Rat
	ExpensesDelta *big.Rat
	NetDelta      *big.Rat
	CountDelta    int

	Consistent bool
	Hypotheses []Hypothesis
}

// Diagnose computes signed deltas (computed minus reference) and ranks
// the two remediation paths: a store/reference transaction-count gap
// (import gap or duplicate import) versus an inclusion-rule mismatch
// (e.g. an account-filter misconfiguration). storedTransactionCount is
// the raw stored count for the period, before inclusion rules.
func Diagnose(summary *Summary, storedTransactionCount int, ref ReferenceTotals) *Diagnosis {
	refRevenue := ref.Revenue
	if refRevenue == nil {
		refRevenue = new(big.Rat)
	}
	refExpenses := ref.Expenses
	if refExpenses == nil {
		refExpenses = new(big.Rat)
	}
	refNet := new(big.Rat).Sub(refRevenue, refExpenses)

	d := &Diagnosis{
		RevenueDelta:  new(big.Rat).Sub(summary.Revenue, refRevenue),
		ExpensesDelta: new(big.Rat).Sub(summary.Expenses, refExpenses),
		NetDelta:      new(big.Rat).Sub(summary.Net, refNet),
		CountDelta:    storedTransactionCount - ref.TransactionCount,
	}

	amountsDiffer := d.RevenueDelta.Sign() != 0 || d.ExpensesDelta.Sign() != 0
	d.Consistent = d.CountDelta == 0 && !amountsDiffer
	if d.Consistent {
		return d
	}

	countGap := countGapHypothesis(d.CountDelta)
	ruleMismatch := Hypothesis{
		Code: HypothesisInclusionRules,
		Detail: fmt.Sprintf(
			"dashboard inclusion rules may not match what the reference expects "+
				"(%d transactions excluded: check the operating-account filter %q and ventilated parents)",
			summary.CountExcluded, summary.OperatingAccount),
	}

	// A count gap is the leading hypothesis whenever the stored and
	// reference counts disagree; otherwise the rule mismatch leads.
	if d.CountDelta != 0 {
		countGap.Leading = true
		d.Hypotheses = []Hypothesis{countGap, ruleMismatch}
	} else {
		ruleMismatch.Leading = true
		d.Hypotheses = []Hypothesis{ruleMismatch, countGap}
	}

	return d
}

func countGapHypothesis(countDelta int) Hypothesis {
	switch {
	case countDelta > 0:
		return Hypothesis{
			Code: HypothesisSurplusInStore,
			Detail: fmt.Sprintf(
				"%d transactions present in the store beyond the reference source (duplicate import, or the reference statement is incomplete)",
				countDelta),
		}
	case countDelta < 0:
		return Hypothesis{
			Code: HypothesisMissingInStore,
			Detail: fmt.Sprintf(
				"%d transactions present in the reference source but absent from the store (import gap)",
				-countDelta),
		}
	default:
		return Hypothesis{
			Code:   HypothesisSurplusInStore,
			Detail: "store and reference agree on transaction count",
		}
	}
}
