// Package policy arbitrates oracle proposals against hard business
// invariants: no positive action on negative expected value, confidence
// gating, and temporal consistency. The validator, not the oracle, is the
// source of truth for all financial arithmetic.
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"payment-sentinel/internal/segment"
	"payment-sentinel/internal/trend"
)

// Validator evaluates proposals through a fixed check sequence:
// well-formedness → consistency → confidence gate → temporal override.
// Checks short-circuit on first failure; the temporal override applies even
// to proposals that passed everything else.
type Validator struct {
	marginRate          decimal.Decimal
	rerouteCost         decimal.Decimal
	confidenceThreshold float64
}

// NewValidator constructs a validator from the run's immutable financial
// configuration.
func NewValidator(marginRate, rerouteCost, confidenceThreshold float64) *Validator {
	return &Validator{
		marginRate:          decimal.NewFromFloat(marginRate),
		rerouteCost:         decimal.NewFromFloat(rerouteCost),
		confidenceThreshold: confidenceThreshold,
	}
}

// NetBenefit computes potential_revenue − intervention_cost for a cluster
// from the cluster's own statistics, never from oracle-reported figures.
// Non-cost-bearing actions carry zero intervention cost and zero recoverable
// revenue, so their net benefit is zero.
func (v *Validator) NetBenefit(cluster segment.FailureCluster, action ActionKind) decimal.Decimal {
	if !action.CostBearing() {
		return decimal.Zero
	}
	count := decimal.NewFromInt(int64(cluster.Count))
	revenue := cluster.AvgAmount.Mul(v.marginRate).Mul(count)
	cost := v.rerouteCost.Mul(count)
	return revenue.Sub(cost)
}

// InterventionCost returns the cost of applying a cost-bearing action to the
// whole cluster.
func (v *Validator) InterventionCost(cluster segment.FailureCluster) decimal.Decimal {
	return v.rerouteCost.Mul(decimal.NewFromInt(int64(cluster.Count)))
}

// PotentialRevenue returns the margin recoverable by remediating the cluster.
func (v *Validator) PotentialRevenue(cluster segment.FailureCluster) decimal.Decimal {
	return cluster.AvgAmount.Mul(v.marginRate).Mul(decimal.NewFromInt(int64(cluster.Count)))
}

// Validate runs the decision state machine for one cluster evaluation and
// produces exactly one Decision regardless of branch. signal is the trend
// detector's classification for the cluster; source records proposal
// provenance.
func (v *Validator) Validate(cluster segment.FailureCluster, signal trend.Signal, proposal ProposedAction, source string) Decision {
	d := Decision{
		Cluster:    cluster,
		Proposal:   proposal,
		Signal:     signal,
		NetBenefit: v.NetBenefit(cluster, proposal.Action),
		Source:     source,
		Timestamp:  time.Now().UTC(),
	}

	// 1. Well-formedness.
	if !wellFormed(proposal, cluster) {
		return v.override(d, ActionIgnore, ReasonMalformedProposal)
	}

	// 2. Consistency: the profit invariant, computed independently.
	// Security-class actions bypass it; they may legitimately cost money.
	if proposal.Action.CostBearing() && !proposal.Action.SecurityClass() && d.NetBenefit.IsNegative() {
		return v.override(d, ActionIgnore, ReasonNegativeNetBenefit)
	}

	// 3. Confidence gate. A low-confidence security call still escalates to
	// human review instead of being silently dropped.
	if proposal.Confidence < v.confidenceThreshold {
		target := ActionIgnore
		if proposal.Action.SecurityClass() {
			target = ActionHoldForReview
		}
		return v.override(d, target, ReasonLowConfidence)
	}

	// 4. Temporal override: remediating traffic bound for a counterparty in
	// active collapse wastes the intervention cost.
	if signal == trend.SignalSpike && proposal.Action.CostBearing() {
		return v.override(d, ActionAlert, ReasonSpikeInProgress)
	}

	d.Accepted = true
	d.FinalAction = proposal.Action
	return d
}

func (v *Validator) override(d Decision, target ActionKind, reason string) Decision {
	d.Accepted = false
	d.FinalAction = target
	d.OverrideReason = reason
	if d.Proposal.Action.CostBearing() {
		d.CapitalPreserved = v.InterventionCost(d.Cluster)
	}
	return d
}

func wellFormed(p ProposedAction, cluster segment.FailureCluster) bool {
	if !p.Action.Valid() {
		return false
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return false
	}
	if p.AffectedVolume < 1 || p.AffectedVolume > cluster.Count {
		return false
	}
	if !p.TemporalSignal.Valid() {
		return false
	}
	if p.SegmentDescription == "" || p.Justification == "" || p.CostAnalysis == "" {
		return false
	}
	return true
}
