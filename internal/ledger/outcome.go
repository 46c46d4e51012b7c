package ledger

import (
	"github.com/shopspring/decimal"

	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/txn"
)

// Outcome is the fold of the ledger: net financial impact per run. No
// running totals exist outside this replay.
type Outcome struct {
	Decisions          int
	Accepted           int
	Overridden         int
	TotalCost          decimal.Decimal
	TotalRevenueSaved  decimal.Decimal
	NetProfit          decimal.Decimal
	CapitalPreserved   decimal.Decimal
	CountsPerAction    map[policy.ActionKind]int
	PatternsDiscovered int
}

// Replay folds the ledger into outcome metrics using the same cost/revenue
// formulas the validator applied.
func Replay(entries []Entry, marginRate, rerouteCost float64) Outcome {
	margin := decimal.NewFromFloat(marginRate)
	perTxnCost := decimal.NewFromFloat(rerouteCost)

	out := Outcome{
		CountsPerAction:   make(map[policy.ActionKind]int),
		TotalCost:         decimal.Zero,
		TotalRevenueSaved: decimal.Zero,
		CapitalPreserved:  decimal.Zero,
	}
	patterns := make(map[string]struct{})

	for _, e := range entries {
		d := e.Decision
		out.Decisions++
		out.CountsPerAction[d.FinalAction]++

		if !d.Accepted {
			out.Overridden++
			out.CapitalPreserved = out.CapitalPreserved.Add(d.CapitalPreserved)
			continue
		}
		out.Accepted++

		if d.FinalAction.CostBearing() {
			count := decimal.NewFromInt(int64(d.Cluster.Count))
			out.TotalCost = out.TotalCost.Add(perTxnCost.Mul(count))
			out.TotalRevenueSaved = out.TotalRevenueSaved.Add(d.Cluster.AvgAmount.Mul(margin).Mul(count))
		}
		if d.FinalAction != policy.ActionIgnore {
			patterns[d.Proposal.SegmentDescription] = struct{}{}
		}
	}

	out.NetProfit = out.TotalRevenueSaved.Sub(out.TotalCost)
	out.PatternsDiscovered = len(patterns)
	return out
}

// Baseline is the naive comparison policy: every failed transaction rerouted
// unconditionally, costed with the identical per-transaction formulas.
type Baseline struct {
	Failures          int
	TotalCost         decimal.Decimal
	TotalRevenueSaved decimal.Decimal
	NetProfit         decimal.Decimal
}

// NaiveBaseline computes the reroute-everything outcome over the same
// transaction set.
func NaiveBaseline(transactions []txn.Transaction, marginRate, rerouteCost float64) Baseline {
	margin := decimal.NewFromFloat(marginRate)
	perTxnCost := decimal.NewFromFloat(rerouteCost)

	b := Baseline{
		TotalCost:         decimal.Zero,
		TotalRevenueSaved: decimal.Zero,
	}
	for _, t := range transactions {
		if !t.IsFailure() {
			continue
		}
		b.Failures++
		b.TotalCost = b.TotalCost.Add(perTxnCost)
		b.TotalRevenueSaved = b.TotalRevenueSaved.Add(t.Amount.Mul(margin))
	}
	b.NetProfit = b.TotalRevenueSaved.Sub(b.TotalCost)
	return b
}
