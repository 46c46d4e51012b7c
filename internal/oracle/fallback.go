package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/trend"
)

// RuleProposer is the deterministic degraded-mode proposer used once the
// circuit breaker has tripped (or when no oracle is configured): pure
// cost/benefit arithmetic, no trend or oracle judgment. Its confidence is
// 1.0 because the arithmetic is exact, not estimated.
type RuleProposer struct {
	marginRate  decimal.Decimal
	rerouteCost decimal.Decimal
}

// NewRuleProposer constructs the fallback from the run's financial config.
func NewRuleProposer(marginRate, rerouteCost float64) *RuleProposer {
	return &RuleProposer{
		marginRate:  decimal.NewFromFloat(marginRate),
		rerouteCost: decimal.NewFromFloat(rerouteCost),
	}
}

// Propose reroutes profitable clusters and ignores the rest.
func (r *RuleProposer) Propose(_ context.Context, req Request) (policy.ProposedAction, error) {
	c := req.Cluster
	count := decimal.NewFromInt(int64(c.Count))
	revenue := c.AvgAmount.Mul(r.marginRate).Mul(count)
	cost := r.rerouteCost.Mul(count)
	net := revenue.Sub(cost)

	action := policy.ActionIgnore
	if net.IsPositive() {
		action = policy.ActionReroute
	}

	return policy.ProposedAction{
		SegmentDescription: c.Description(),
		AffectedVolume:     c.Count,
		CostAnalysis: fmt.Sprintf("recoverable margin %s - intervention cost %s = net %s",
			revenue.StringFixed(2), cost.StringFixed(2), net.StringFixed(2)),
		TemporalSignal: trend.SignalStable,
		Action:         action,
		Justification:  "deterministic cost/benefit rule; reasoning oracle unavailable",
		Confidence:     1.0,
	}, nil
}

var _ Proposer = (*RuleProposer)(nil)
