package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-sentinel/internal/alerting"
	"payment-sentinel/internal/config"
	"payment-sentinel/internal/ledger"
	"payment-sentinel/internal/oracle"
	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/txn"
	"payment-sentinel/internal/window"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		WindowWidth:          30 * time.Minute,
		HistorySize:          6,
		MinClusterSize:       2,
		SpikeMultiplier:      3.0,
		MinAbsoluteDelta:     0.05,
		ConfidenceThreshold:  0.70,
		MarginRate:           0.02,
		RerouteCost:          15.0,
		Workers:              2,
		MaxClustersPerWindow: 12,
	}
}

// rerouteProposer always proposes a confident, well-formed REROUTE.
type rerouteProposer struct{}

func (rerouteProposer) Propose(_ context.Context, req oracle.Request) (policy.ProposedAction, error) {
	return policy.ProposedAction{
		SegmentDescription: req.Cluster.Description(),
		AffectedVolume:     req.Cluster.Count,
		CostAnalysis:       "stubbed",
		TemporalSignal:     "stable",
		Action:             policy.ActionReroute,
		Justification:      "stubbed reroute",
		Confidence:         0.9,
	}, nil
}

type failingProposer struct{ err error }

func (f failingProposer) Propose(context.Context, oracle.Request) (policy.ProposedAction, error) {
	return policy.ProposedAction{}, f.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (r *recordingSink) Persist(_ context.Context, e ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// windowBatch builds one window of traffic for a single segment: failures
// failed transactions and successes successful ones, all at amount 6000.
func windowBatch(start time.Time, failures, successes int) window.Batch {
	w := window.Window{Start: start, End: start.Add(30 * time.Minute)}
	var transactions []txn.Transaction
	for i := 0; i < failures; i++ {
		transactions = append(transactions, txn.Transaction{
			ID:             fmt.Sprintf("f-%s-%d", start.Format("1504"), i),
			Timestamp:      start.Add(time.Duration(i) * time.Second),
			Counterparty:   "HDFC",
			InstrumentType: "credit_card",
			Amount:         decimal.NewFromInt(6000),
			Outcome:        txn.OutcomeFailed,
			FailureCode:    "GATEWAY_TIMEOUT",
		})
	}
	for i := 0; i < successes; i++ {
		transactions = append(transactions, txn.Transaction{
			ID:             fmt.Sprintf("s-%s-%d", start.Format("1504"), i),
			Timestamp:      start.Add(time.Duration(i) * time.Second),
			Counterparty:   "HDFC",
			InstrumentType: "credit_card",
			Amount:         decimal.NewFromInt(6000),
			Outcome:        txn.OutcomeSuccess,
		})
	}
	return window.Batch{Window: w, Transactions: transactions}
}

func TestRunSpikeOverridesAfterStableHistory(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	// Three windows at a 5% failure rate, then one at 18%.
	batches := []window.Batch{
		windowBatch(base, 2, 38),
		windowBatch(base.Add(30*time.Minute), 2, 38),
		windowBatch(base.Add(60*time.Minute), 2, 38),
		windowBatch(base.Add(90*time.Minute), 18, 82),
	}

	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	eng := New(Params{
		Config:   testEngineConfig(),
		Proposer: rerouteProposer{},
		Fallback: oracle.NewRuleProposer(0.02, 15.0),
		Ledger:   ledger.New(),
		Sink:     sink,
		Notifier: notifier,
		Channels: []string{"telegram"},
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, eng.Run(context.Background(), batches))

	entries := eng.Ledger().Entries()
	require.Len(t, entries, 4)

	// First three windows: stable signal, profitable REROUTE accepted.
	for i := 0; i < 3; i++ {
		d := entries[i].Decision
		assert.True(t, d.Accepted, "window %d", i)
		assert.Equal(t, policy.ActionReroute, d.FinalAction, "window %d", i)
	}

	// Fourth window: spike classified against the committed history, REROUTE
	// overridden to ALERT.
	last := entries[3].Decision
	assert.False(t, last.Accepted)
	assert.Equal(t, policy.ActionAlert, last.FinalAction)
	assert.Equal(t, policy.ReasonSpikeInProgress, last.OverrideReason)

	require.Len(t, notifier.notes, 1, "only the ALERT escalates")
	assert.Equal(t, "HIGH", notifier.notes[0].Severity)
	assert.Equal(t, "ALERT", notifier.notes[0].FinalAction)

	require.Len(t, sink.entries, 4)
	seen := make(map[int]bool)
	for _, e := range sink.entries {
		seen[e.Seq] = true
	}
	assert.Len(t, seen, 4, "every ledger entry persisted exactly once")
}

func TestCounterpartyRollupSpikeDominatesSegmentSignal(t *testing.T) {
	eng := New(Params{
		Config:   testEngineConfig(),
		Proposer: rerouteProposer{},
		Fallback: oracle.NewRuleProposer(0.02, 15.0),
		Ledger:   ledger.New(),
		Logger:   zerolog.Nop(),
	})

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// Two quiet windows: credit_card at 5%, upi clean. Counterparty rate 2.5%.
	upiTraffic := func(start time.Time, failures, successes int) []txn.Transaction {
		var out []txn.Transaction
		for i := 0; i < failures; i++ {
			out = append(out, txn.Transaction{
				ID:             fmt.Sprintf("uf-%s-%d", start.Format("1504"), i),
				Timestamp:      start.Add(time.Duration(i) * time.Second),
				Counterparty:   "HDFC",
				InstrumentType: "upi",
				Amount:         decimal.NewFromInt(6000),
				Outcome:        txn.OutcomeFailed,
				FailureCode:    "BANK_DECLINE",
			})
		}
		for i := 0; i < successes; i++ {
			out = append(out, txn.Transaction{
				ID:             fmt.Sprintf("us-%s-%d", start.Format("1504"), i),
				Timestamp:      start.Add(time.Duration(i) * time.Second),
				Counterparty:   "HDFC",
				InstrumentType: "upi",
				Amount:         decimal.NewFromInt(6000),
				Outcome:        txn.OutcomeSuccess,
			})
		}
		return out
	}

	for i := 0; i < 2; i++ {
		start := base.Add(time.Duration(i) * 30 * time.Minute)
		b := windowBatch(start, 2, 38)
		b.Transactions = append(b.Transactions, upiTraffic(start, 0, 40)...)
		require.NoError(t, eng.ProcessWindow(context.Background(), b))
	}

	// Third window: credit_card still at its usual 5%, but upi collapses and
	// drags the counterparty rollup into spike territory.
	start := base.Add(60 * time.Minute)
	b := windowBatch(start, 2, 38)
	b.Transactions = append(b.Transactions, upiTraffic(start, 32, 8)...)
	require.NoError(t, eng.ProcessWindow(context.Background(), b))

	entries := eng.Ledger().Entries()
	var last []policy.Decision
	for _, e := range entries {
		if e.Decision.Cluster.WindowStart.Equal(start) {
			last = append(last, e.Decision)
		}
	}
	require.NotEmpty(t, last)
	for _, d := range last {
		assert.Equal(t, policy.ActionAlert, d.FinalAction, "segment %s", d.Cluster.Key.String())
		assert.Equal(t, policy.ReasonSpikeInProgress, d.OverrideReason, "segment %s", d.Cluster.Key.String())
	}
}

func TestProcessWindowSmallClustersProduceNoDecisions(t *testing.T) {
	eng := New(Params{
		Config:   testEngineConfig(),
		Proposer: rerouteProposer{},
		Fallback: oracle.NewRuleProposer(0.02, 15.0),
		Ledger:   ledger.New(),
		Logger:   zerolog.Nop(),
	})

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, eng.ProcessWindow(context.Background(), windowBatch(base, 1, 39)))

	assert.Equal(t, 0, eng.Ledger().Len())
}

func TestProcessWindowMalformedProposalRecordsOverride(t *testing.T) {
	eng := New(Params{
		Config:   testEngineConfig(),
		Proposer: failingProposer{err: oracle.ErrProposalFormat},
		Fallback: oracle.NewRuleProposer(0.02, 15.0),
		Ledger:   ledger.New(),
		Logger:   zerolog.Nop(),
	})

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, eng.ProcessWindow(context.Background(), windowBatch(base, 5, 35)))

	entries := eng.Ledger().Entries()
	require.Len(t, entries, 1, "the cluster is never silently skipped")
	d := entries[0].Decision
	assert.False(t, d.Accepted)
	assert.Equal(t, policy.ActionIgnore, d.FinalAction)
	assert.Equal(t, policy.ReasonMalformedProposal, d.OverrideReason)
	assert.Equal(t, policy.SourceOracle, d.Source)
}

func TestProcessWindowFallsBackWhenOracleUnavailable(t *testing.T) {
	eng := New(Params{
		Config:   testEngineConfig(),
		Proposer: failingProposer{err: oracle.ErrUnavailable},
		Fallback: oracle.NewRuleProposer(0.02, 15.0),
		Ledger:   ledger.New(),
		Logger:   zerolog.Nop(),
	})

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, eng.ProcessWindow(context.Background(), windowBatch(base, 5, 35)))

	entries := eng.Ledger().Entries()
	require.Len(t, entries, 1)
	d := entries[0].Decision
	assert.Equal(t, policy.SourceFallback, d.Source)
	assert.True(t, d.Accepted, "profitable cluster accepted via the rule fallback")
	assert.Equal(t, policy.ActionReroute, d.FinalAction)
}

func TestProcessWindowNilProposerUsesFallback(t *testing.T) {
	eng := New(Params{
		Config:   testEngineConfig(),
		Fallback: oracle.NewRuleProposer(0.02, 15.0),
		Ledger:   ledger.New(),
		Logger:   zerolog.Nop(),
	})

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, eng.ProcessWindow(context.Background(), windowBatch(base, 5, 35)))

	entries := eng.Ledger().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, policy.SourceFallback, entries[0].Decision.Source)
}
