package txn

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the terminal status of a payment attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// Transaction is an immutable payment record as produced by the upstream
// data source. It is read-only to every component downstream of ingestion.
type Transaction struct {
	ID               string          `json:"transaction_id"`
	Timestamp        time.Time       `json:"timestamp"`
	Counterparty     string          `json:"counterparty"`
	InstrumentType   string          `json:"instrument_type"`
	MerchantCategory string          `json:"merchant_category,omitempty"`
	CustomerTier     string          `json:"customer_tier,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Outcome          Outcome         `json:"outcome"`
	LatencyMS        int64           `json:"latency_ms"`
	FailureCode      string          `json:"failure_code,omitempty"`
}

// IsFailure reports whether the transaction failed.
func (t Transaction) IsFailure() bool {
	return t.Outcome == OutcomeFailed
}

var (
	errMissingID           = errors.New("transaction_id is required")
	errMissingTimestamp    = errors.New("timestamp is required")
	errMissingCounterparty = errors.New("counterparty is required")
	errMissingInstrument   = errors.New("instrument_type is required")
	errNonPositiveAmount   = errors.New("amount must be greater than zero")
	errNegativeLatency     = errors.New("latency_ms cannot be negative")
	errUnknownOutcome      = errors.New("outcome must be SUCCESS or FAILED")
	errSuccessWithFailure  = errors.New("SUCCESS transactions cannot carry a failure_code")
)

// Validate checks the schema constraints of a single record. Records failing
// validation are data-quality errors: skipped and counted, never aggregated.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return errMissingID
	}
	if t.Timestamp.IsZero() {
		return errMissingTimestamp
	}
	if t.Counterparty == "" {
		return errMissingCounterparty
	}
	if t.InstrumentType == "" {
		return errMissingInstrument
	}
	if !t.Amount.IsPositive() {
		return errNonPositiveAmount
	}
	if t.LatencyMS < 0 {
		return errNegativeLatency
	}
	switch t.Outcome {
	case OutcomeSuccess:
		if t.FailureCode != "" {
			return errSuccessWithFailure
		}
	case OutcomeFailed:
	default:
		return errUnknownOutcome
	}
	return nil
}
