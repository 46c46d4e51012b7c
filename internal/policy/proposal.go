package policy

import (
	"payment-sentinel/internal/trend"
)

// ProposedAction is the reasoning oracle's output for one cluster. It is
// untrusted input: any field may be missing, out of range, or internally
// contradictory, and the validator re-derives every figure it can.
type ProposedAction struct {
	SegmentDescription string       `json:"segment_description"`
	AffectedVolume     int          `json:"affected_volume"`
	CostAnalysis       string       `json:"cost_analysis"`
	TemporalSignal     trend.Signal `json:"temporal_signal"`
	Action             ActionKind   `json:"action"`
	Justification      string       `json:"justification"`
	Confidence         float64      `json:"confidence"`
}

// Proposal provenance recorded on each decision.
const (
	SourceOracle   = "oracle"
	SourceFallback = "fallback"
)
