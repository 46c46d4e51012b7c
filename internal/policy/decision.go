package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"payment-sentinel/internal/segment"
	"payment-sentinel/internal/trend"
)

// Override reasons recorded on the decision when the validator replaces the
// proposed action with a safer deterministic one.
const (
	ReasonMalformedProposal  = "malformed_proposal"
	ReasonNegativeNetBenefit = "negative_net_benefit"
	ReasonLowConfidence      = "low_confidence"
	ReasonSpikeInProgress    = "spike_in_progress"
)

// Decision is the validator's final, authoritative record for one cluster in
// one evaluation cycle. Immutable once appended to the ledger.
type Decision struct {
	Cluster  segment.FailureCluster
	Proposal ProposedAction
	// Signal is the trend detector's classification, the authoritative
	// temporal signal; the oracle's self-reported one stays on the proposal.
	Signal         trend.Signal
	Accepted       bool
	FinalAction    ActionKind
	OverrideReason string
	// NetBenefit is the validator's independent computation for the proposed
	// action's polarity, recorded on every branch for audit.
	NetBenefit decimal.Decimal
	// CapitalPreserved is the intervention cost avoided when a cost-bearing
	// proposal was overridden.
	CapitalPreserved decimal.Decimal
	Source           string
	Timestamp        time.Time
}
