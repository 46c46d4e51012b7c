package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"payment-sentinel/internal/ledger"
)

// DecisionRecord is the persisted form of one ledger entry.
type DecisionRecord struct {
	ID               int64
	RunID            string
	Seq              int
	WindowStart      time.Time
	WindowEnd        time.Time
	Counterparty     string
	InstrumentType   string
	AmountBucket     string
	ClusterCount     int
	AvgAmount        decimal.Decimal
	FailureRate      float64
	ErrorCodes       []string
	TemporalSignal   string
	ProposedAction   string
	FinalAction      string
	Accepted         bool
	OverrideReason   string
	Confidence       float64
	NetBenefit       decimal.Decimal
	CapitalPreserved decimal.Decimal
	Source           string
	Justification    string
	DecidedAt        time.Time
	CreatedAt        time.Time
}

// NewDecisionRecord flattens a ledger entry for persistence.
func NewDecisionRecord(e ledger.Entry) DecisionRecord {
	d := e.Decision
	return DecisionRecord{
		RunID:            e.RunID,
		Seq:              e.Seq,
		WindowStart:      d.Cluster.WindowStart,
		WindowEnd:        d.Cluster.WindowEnd,
		Counterparty:     d.Cluster.Key.Counterparty,
		InstrumentType:   d.Cluster.Key.InstrumentType,
		AmountBucket:     d.Cluster.Key.AmountBucket,
		ClusterCount:     d.Cluster.Count,
		AvgAmount:        d.Cluster.AvgAmount,
		FailureRate:      d.Cluster.FailureRate,
		ErrorCodes:       d.Cluster.ErrorCodes,
		TemporalSignal:   string(d.Signal),
		ProposedAction:   string(d.Proposal.Action),
		FinalAction:      string(d.FinalAction),
		Accepted:         d.Accepted,
		OverrideReason:   d.OverrideReason,
		Confidence:       d.Proposal.Confidence,
		NetBenefit:       d.NetBenefit,
		CapitalPreserved: d.CapitalPreserved,
		Source:           d.Source,
		Justification:    d.Proposal.Justification,
		DecidedAt:        d.Timestamp,
	}
}
