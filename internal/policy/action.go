package policy

// ActionKind is the closed set of remediation outcomes. Each value carries an
// implicit financial polarity: cost-bearing actions have an explicit
// cost/revenue model, zero-cost actions spend nothing, and human-gated
// actions bypass profit arithmetic entirely.
type ActionKind string

const (
	ActionReroute          ActionKind = "REROUTE"
	ActionIgnore           ActionKind = "IGNORE"
	ActionAlert            ActionKind = "ALERT"
	ActionThrottle         ActionKind = "THROTTLE"
	ActionFailover         ActionKind = "FAILOVER"
	ActionCircuitBreak     ActionKind = "CIRCUIT_BREAK"
	ActionBlockCard        ActionKind = "BLOCK_CARD"
	ActionBlockUser        ActionKind = "BLOCK_USER"
	ActionRateLimit        ActionKind = "RATE_LIMIT"
	ActionStepUpAuth       ActionKind = "STEP_UP_AUTH"
	ActionHoldForReview    ActionKind = "HOLD_FOR_REVIEW"
	ActionEscalateSecurity ActionKind = "ESCALATE_SECURITY"
	ActionEscalatePriority ActionKind = "ESCALATE_PRIORITY"
	ActionComplianceHold   ActionKind = "COMPLIANCE_HOLD"
)

var allActions = map[ActionKind]struct{}{
	ActionReroute:          {},
	ActionIgnore:           {},
	ActionAlert:            {},
	ActionThrottle:         {},
	ActionFailover:         {},
	ActionCircuitBreak:     {},
	ActionBlockCard:        {},
	ActionBlockUser:        {},
	ActionRateLimit:        {},
	ActionStepUpAuth:       {},
	ActionHoldForReview:    {},
	ActionEscalateSecurity: {},
	ActionEscalatePriority: {},
	ActionComplianceHold:   {},
}

// Valid reports whether a belongs to the closed action set.
func (a ActionKind) Valid() bool {
	_, ok := allActions[a]
	return ok
}

// CostBearing reports whether the action spends intervention budget per
// transaction and is therefore subject to the profit invariant.
func (a ActionKind) CostBearing() bool {
	return a == ActionReroute || a == ActionFailover
}

// SecurityClass reports whether the action is a security/compliance call.
// These bypass the profit check (they may legitimately carry negative net
// benefit) but failed confidence gates degrade them to HOLD_FOR_REVIEW
// rather than silently ignoring a possible fraud cluster.
func (a ActionKind) SecurityClass() bool {
	switch a {
	case ActionBlockCard, ActionBlockUser, ActionEscalateSecurity, ActionComplianceHold:
		return true
	}
	return false
}

// Escalation reports whether the action routes to a human channel and should
// be dispatched through the notifier.
func (a ActionKind) Escalation() bool {
	switch a {
	case ActionAlert, ActionEscalateSecurity, ActionEscalatePriority, ActionHoldForReview, ActionComplianceHold:
		return true
	}
	return false
}
