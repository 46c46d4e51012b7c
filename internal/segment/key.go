package segment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Amount bucket boundaries. Fixed, non-overlapping, deterministic: every
// positive amount maps to exactly one bucket.
var (
	bucketLow  = decimal.NewFromInt(100)
	bucketMid  = decimal.NewFromInt(1000)
	bucketHigh = decimal.NewFromInt(5000)
)

// AmountBucket returns the bucket label for an amount.
func AmountBucket(amount decimal.Decimal) string {
	switch {
	case amount.LessThan(bucketLow):
		return "<100"
	case amount.LessThan(bucketMid):
		return "100-1000"
	case amount.LessThan(bucketHigh):
		return "1000-5000"
	default:
		return ">5000"
	}
}

// Key identifies a failure segment: the four categorical dimensions every
// failed transaction maps onto exactly once.
type Key struct {
	Counterparty   string
	InstrumentType string
	AmountBucket   string
	WindowStart    time.Time
}

// String renders the key in a stable form usable as a map key and as the
// trend-history identity across windows (the window component is excluded:
// history tracks the same segment through time).
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Counterparty, k.InstrumentType, k.AmountBucket)
}

// WithWindow renders the fully qualified key including the time bucket.
func (k Key) WithWindow() string {
	return fmt.Sprintf("%s|%s", k.String(), k.WindowStart.UTC().Format(time.RFC3339))
}
