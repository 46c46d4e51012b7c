// Package ledger holds the append-only record of decisions for one run and
// derives all outcome metrics by replay, so the audit trail and the metrics
// can never disagree.
package ledger

import (
	"sync"

	"github.com/google/uuid"

	"payment-sentinel/internal/policy"
)

// Entry is one ledger row: a decision plus its position in the run's total
// order.
type Entry struct {
	Seq      int
	RunID    string
	Decision policy.Decision
}

// Ledger is the single-writer, append-only decision log. Concurrent cluster
// evaluations append under one serializing lock to preserve a total order.
type Ledger struct {
	mu      sync.Mutex
	runID   string
	entries []Entry
}

// New opens an empty ledger for a fresh run.
func New() *Ledger {
	return &Ledger{runID: uuid.NewString()}
}

// RunID identifies this run on every persisted row.
func (l *Ledger) RunID() string { return l.runID }

// Append records a decision and returns its sequence number. Entries are
// immutable once written.
func (l *Ledger) Append(d policy.Decision) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Seq:      len(l.entries) + 1,
		RunID:    l.runID,
		Decision: d,
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Entries returns a copy of the ledger in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of recorded decisions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
