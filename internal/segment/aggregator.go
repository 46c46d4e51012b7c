// Package segment groups failed transactions into multi-dimensional clusters
// and computes per-cluster statistics for downstream arbitration.
package segment

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"payment-sentinel/internal/txn"
	"payment-sentinel/internal/window"
)

// FailureCluster aggregates one segment within one window. Derived and
// recomputed each batch; never mutated after construction.
type FailureCluster struct {
	Key         Key
	Count       int
	AvgAmount   decimal.Decimal
	FailureRate float64
	ErrorCodes  []string
	WindowStart time.Time
	WindowEnd   time.Time
}

// Description renders the cluster as a bounded, PII-free segment summary.
func (c FailureCluster) Description() string {
	return fmt.Sprintf("%s %s %s failing %s-%s",
		c.Key.Counterparty,
		c.Key.InstrumentType,
		c.Key.AmountBucket,
		c.WindowStart.UTC().Format("15:04"),
		c.WindowEnd.UTC().Format("15:04"),
	)
}

// ImpactScore ranks clusters by business impact (count × avg amount).
func (c FailureCluster) ImpactScore() decimal.Decimal {
	return c.AvgAmount.Mul(decimal.NewFromInt(int64(c.Count)))
}

// Aggregator is a pure function of its inputs plus configuration.
type Aggregator struct {
	minClusterSize int
}

// NewAggregator constructs an aggregator with the minimum cluster size used
// to suppress statistically insignificant noise.
func NewAggregator(minClusterSize int) *Aggregator {
	if minClusterSize < 1 {
		minClusterSize = 1
	}
	return &Aggregator{minClusterSize: minClusterSize}
}

type groupStats struct {
	failures   int
	total      int
	amountSum  decimal.Decimal
	errorCodes map[string]struct{}
}

// Aggregate groups the window's failed transactions by (counterparty,
// instrument) and then by amount bucket, computing per-cluster statistics.
// The failure rate denominator is all transactions — success and failure —
// sharing the same dimensions in the same window. Groups smaller than the
// configured minimum are dropped. Output order is deterministic: replaying
// the same batch with the same config yields an identical cluster set.
func (a *Aggregator) Aggregate(transactions []txn.Transaction, w window.Window) []FailureCluster {
	groups := make(map[Key]*groupStats)

	for _, t := range transactions {
		if !w.Contains(t.Timestamp) {
			continue
		}
		key := Key{
			Counterparty:   t.Counterparty,
			InstrumentType: t.InstrumentType,
			AmountBucket:   AmountBucket(t.Amount),
			WindowStart:    w.Start,
		}
		stats := groups[key]
		if stats == nil {
			stats = &groupStats{errorCodes: make(map[string]struct{})}
			groups[key] = stats
		}
		stats.total++
		if !t.IsFailure() {
			continue
		}
		stats.failures++
		stats.amountSum = stats.amountSum.Add(t.Amount)
		if t.FailureCode != "" {
			stats.errorCodes[t.FailureCode] = struct{}{}
		}
	}

	clusters := make([]FailureCluster, 0, len(groups))
	for key, stats := range groups {
		if stats.failures < a.minClusterSize {
			continue
		}
		clusters = append(clusters, FailureCluster{
			Key:         key,
			Count:       stats.failures,
			AvgAmount:   stats.amountSum.Div(decimal.NewFromInt(int64(stats.failures))),
			FailureRate: float64(stats.failures) / float64(stats.total),
			ErrorCodes:  sortedCodes(stats.errorCodes),
			WindowStart: w.Start,
			WindowEnd:   w.End,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].Key.String() < clusters[j].Key.String()
	})
	return clusters
}

// RankByImpact orders clusters by descending impact score and keeps at most
// max entries, bounding the information sent to the proposal interface.
func RankByImpact(clusters []FailureCluster, max int) []FailureCluster {
	ranked := make([]FailureCluster, len(clusters))
	copy(ranked, clusters)
	sort.SliceStable(ranked, func(i, j int) bool {
		cmp := ranked[i].ImpactScore().Cmp(ranked[j].ImpactScore())
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].Key.String() < ranked[j].Key.String()
	})
	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// CounterpartyRates computes each counterparty's whole-window failure rate,
// the coarse rollup used to tell a counterparty-wide outage apart from
// unrelated segment spikes.
func CounterpartyRates(transactions []txn.Transaction, w window.Window) map[string]float64 {
	failures := make(map[string]int)
	totals := make(map[string]int)

	for _, t := range transactions {
		if !w.Contains(t.Timestamp) {
			continue
		}
		totals[t.Counterparty]++
		if t.IsFailure() {
			failures[t.Counterparty]++
		}
	}

	rates := make(map[string]float64, len(totals))
	for cp, total := range totals {
		if total == 0 {
			continue
		}
		rates[cp] = float64(failures[cp]) / float64(total)
	}
	return rates
}

func sortedCodes(set map[string]struct{}) []string {
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
