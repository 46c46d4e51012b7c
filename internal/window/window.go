// Package window provides fixed-width, wall-clock-aligned time windows and
// the partitioning of a transaction batch into an ordered window sequence.
package window

import (
	"fmt"
	"sort"
	"time"

	"payment-sentinel/internal/txn"
)

// Window is a half-open interval [Start, End) aligned to its width.
type Window struct {
	Start time.Time
	End   time.Time
}

// Of returns the window of the given width containing t.
func Of(t time.Time, width time.Duration) Window {
	start := t.UTC().Truncate(width)
	return Window{Start: start, End: start.Add(width)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(w.Start) && u.Before(w.End)
}

// Label renders the window as a compact HH:MM-HH:MM range.
func (w Window) Label() string {
	return fmt.Sprintf("%s-%s", w.Start.UTC().Format("15:04"), w.End.UTC().Format("15:04"))
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// Batch is the slice of a transaction batch falling into one window.
type Batch struct {
	Window       Window
	Transactions []txn.Transaction
}

// Partition splits transactions into aligned windows, ordered by window start.
// Windows with no transactions are omitted: processing is strictly
// batch-per-window and empty windows carry no signal.
func Partition(transactions []txn.Transaction, width time.Duration) []Batch {
	if width <= 0 {
		panic("window width must be positive")
	}

	grouped := make(map[time.Time][]txn.Transaction)
	for _, t := range transactions {
		w := Of(t.Timestamp, width)
		grouped[w.Start] = append(grouped[w.Start], t)
	}

	starts := make([]time.Time, 0, len(grouped))
	for start := range grouped {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	batches := make([]Batch, 0, len(starts))
	for _, start := range starts {
		batches = append(batches, Batch{
			Window:       Window{Start: start, End: start.Add(width)},
			Transactions: grouped[start],
		})
	}
	return batches
}

// AlignForward rounds t up to the next window boundary.
func AlignForward(t time.Time, width time.Duration) time.Time {
	truncated := t.UTC().Truncate(width)
	if truncated.Before(t.UTC()) {
		return truncated.Add(width)
	}
	return truncated
}
