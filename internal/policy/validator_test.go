package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-sentinel/internal/segment"
	"payment-sentinel/internal/trend"
)

func testValidator() *Validator {
	return NewValidator(0.02, 15.0, 0.70)
}

func testCluster(count int, avgAmount float64) segment.FailureCluster {
	start := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	return segment.FailureCluster{
		Key: segment.Key{
			Counterparty:   "HDFC",
			InstrumentType: "credit_card",
			AmountBucket:   ">5000",
			WindowStart:    start,
		},
		Count:       count,
		AvgAmount:   decimal.NewFromFloat(avgAmount),
		FailureRate: 0.18,
		ErrorCodes:  []string{"GATEWAY_TIMEOUT"},
		WindowStart: start,
		WindowEnd:   start.Add(30 * time.Minute),
	}
}

func testProposal(action ActionKind, confidence float64) ProposedAction {
	return ProposedAction{
		SegmentDescription: "HDFC credit_card >5000 failing 14:00-14:30",
		AffectedVolume:     50,
		CostAnalysis:       "7842.50 x 0.02 x 50 - 15 x 50 = 7092.50",
		TemporalSignal:     trend.SignalStable,
		Action:             action,
		Justification:      "high-value segment with recoverable margin",
		Confidence:         confidence,
	}
}

func TestValidateAcceptsProfitableReroute(t *testing.T) {
	v := testValidator()
	cluster := testCluster(50, 7842.50)

	d := v.Validate(cluster, trend.SignalStable, testProposal(ActionReroute, 0.92), SourceOracle)

	assert.True(t, d.Accepted)
	assert.Equal(t, ActionReroute, d.FinalAction)
	assert.Empty(t, d.OverrideReason)
	// 7842.50 x 0.02 x 50 - 15 x 50 = 7092.50
	assert.True(t, d.NetBenefit.Equal(decimal.NewFromFloat(7092.50)), "net benefit %s", d.NetBenefit)
	assert.True(t, d.CapitalPreserved.IsZero())
}

func TestValidateOverridesNegativeNetBenefit(t *testing.T) {
	v := testValidator()
	// 45.20 x 0.02 = 0.904 per txn, against 15.00 cost: deeply negative.
	cluster := testCluster(30, 45.20)
	cluster.Key.AmountBucket = "<100"
	proposal := testProposal(ActionReroute, 0.95)
	proposal.AffectedVolume = 30

	d := v.Validate(cluster, trend.SignalStable, proposal, SourceOracle)

	assert.False(t, d.Accepted)
	assert.Equal(t, ActionIgnore, d.FinalAction)
	assert.Equal(t, ReasonNegativeNetBenefit, d.OverrideReason)
	assert.True(t, d.NetBenefit.IsNegative())
	// 15 x 30 = 450 of intervention spend avoided.
	assert.True(t, d.CapitalPreserved.Equal(decimal.NewFromInt(450)), "capital preserved %s", d.CapitalPreserved)
}

func TestValidateConfidenceGate(t *testing.T) {
	v := testValidator()
	cluster := testCluster(50, 7842.50)

	d := v.Validate(cluster, trend.SignalStable, testProposal(ActionReroute, 0.55), SourceOracle)
	assert.False(t, d.Accepted)
	assert.Equal(t, ActionIgnore, d.FinalAction)
	assert.Equal(t, ReasonLowConfidence, d.OverrideReason)

	// At exactly the threshold the proposal passes the gate.
	d = v.Validate(cluster, trend.SignalStable, testProposal(ActionReroute, 0.70), SourceOracle)
	assert.True(t, d.Accepted)
}

func TestValidateLowConfidenceSecurityActionEscalates(t *testing.T) {
	v := testValidator()
	cluster := testCluster(50, 7842.50)
	proposal := testProposal(ActionBlockCard, 0.60)

	d := v.Validate(cluster, trend.SignalStable, proposal, SourceOracle)

	assert.False(t, d.Accepted)
	assert.Equal(t, ActionHoldForReview, d.FinalAction, "possible fraud is never silently dropped")
	assert.Equal(t, ReasonLowConfidence, d.OverrideReason)
}

func TestValidateSecurityActionBypassesProfitCheck(t *testing.T) {
	v := testValidator()
	cluster := testCluster(30, 45.20)

	d := v.Validate(cluster, trend.SignalStable, testProposal(ActionBlockCard, 0.95), SourceOracle)

	assert.True(t, d.Accepted)
	assert.Equal(t, ActionBlockCard, d.FinalAction)
}

func TestValidateTemporalOverride(t *testing.T) {
	v := testValidator()
	cluster := testCluster(50, 7842.50)

	// Profitable, confident, and still overridden: the counterparty is collapsing.
	d := v.Validate(cluster, trend.SignalSpike, testProposal(ActionReroute, 0.95), SourceOracle)

	assert.False(t, d.Accepted)
	assert.Equal(t, ActionAlert, d.FinalAction)
	assert.Equal(t, ReasonSpikeInProgress, d.OverrideReason)
	assert.True(t, d.CapitalPreserved.Equal(decimal.NewFromInt(750)), "15 x 50 preserved")

	// Zero-cost actions are unaffected by the spike.
	d = v.Validate(cluster, trend.SignalSpike, testProposal(ActionAlert, 0.95), SourceOracle)
	assert.True(t, d.Accepted)
	assert.Equal(t, ActionAlert, d.FinalAction)
}

func TestValidateMalformedProposals(t *testing.T) {
	v := testValidator()
	cluster := testCluster(50, 7842.50)

	cases := map[string]ProposedAction{
		"zero value":         {},
		"unknown action":     mutate(testProposal(ActionReroute, 0.9), func(p *ProposedAction) { p.Action = "REBOOT" }),
		"confidence above 1": mutate(testProposal(ActionReroute, 1.3), nil),
		"volume zero":        mutate(testProposal(ActionReroute, 0.9), func(p *ProposedAction) { p.AffectedVolume = 0 }),
		"volume exceeds cluster": mutate(testProposal(ActionReroute, 0.9), func(p *ProposedAction) {
			p.AffectedVolume = cluster.Count + 1
		}),
		"invalid signal":        mutate(testProposal(ActionReroute, 0.9), func(p *ProposedAction) { p.TemporalSignal = "surging" }),
		"missing justification": mutate(testProposal(ActionReroute, 0.9), func(p *ProposedAction) { p.Justification = "" }),
	}

	for name, proposal := range cases {
		d := v.Validate(cluster, trend.SignalStable, proposal, SourceOracle)
		require.False(t, d.Accepted, name)
		assert.Equal(t, ActionIgnore, d.FinalAction, name)
		assert.Equal(t, ReasonMalformedProposal, d.OverrideReason, name)
	}
}

func TestNetBenefitZeroForNonCostBearing(t *testing.T) {
	v := testValidator()
	cluster := testCluster(50, 7842.50)

	assert.True(t, v.NetBenefit(cluster, ActionAlert).IsZero())
	assert.True(t, v.NetBenefit(cluster, ActionIgnore).IsZero())
	assert.False(t, v.NetBenefit(cluster, ActionFailover).IsZero())
}

func mutate(p ProposedAction, fn func(*ProposedAction)) ProposedAction {
	if fn != nil {
		fn(&p)
	}
	return p
}
