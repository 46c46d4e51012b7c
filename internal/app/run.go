package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"payment-sentinel/internal/engine"
	"payment-sentinel/internal/ledger"
	"payment-sentinel/internal/oracle"
	"payment-sentinel/internal/storage"
	"payment-sentinel/internal/txn"
	"payment-sentinel/internal/window"
)

// Run evaluates one transaction batch end to end: load, window, cluster,
// arbitrate, and print the run's financial outcome.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := withSignalContext(ctx)
	defer cancel()

	if opts.InputPath == "" {
		return errors.New("input path is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	// Single-writer guard: two concurrent runs against the same database
	// would interleave their ledgers.
	if store != nil {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another run holds the advisory lock")
		}
		defer unlock()
	}

	transactions, stats, err := txn.LoadBatch(opts.InputPath, a.Logger)
	if err != nil {
		return err
	}
	a.Logger.Info().
		Int("total", stats.Total).
		Int("loaded", stats.Loaded).
		Int("malformed", stats.Malformed).
		Msg("batch loaded")
	if len(transactions) == 0 {
		return errors.New("no valid transactions in batch")
	}

	batches := window.Partition(transactions, a.Config.Engine.WindowWidth)

	led := ledger.New()
	eng := engine.New(engine.Params{
		Config:   a.Config.Engine,
		Proposer: a.newProposer(),
		Fallback: oracle.NewRuleProposer(a.Config.Engine.MarginRate, a.Config.Engine.RerouteCost),
		Ledger:   led,
		Sink:     newStoreSink(store),
		Notifier: a.newNotifier(),
		Channels: a.Config.Alerting.Channels,
		Logger:   a.Logger,
	})

	a.Logger.Info().
		Str("run_id", led.RunID()).
		Int("windows", len(batches)).
		Msg("starting evaluation run")

	if err := eng.Run(ctx, batches); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("run terminated with error")
		return err
	}

	outcome := ledger.Replay(led.Entries(), a.Config.Engine.MarginRate, a.Config.Engine.RerouteCost)
	printOutcome(led.RunID(), outcome)

	if !opts.SkipBaseline {
		baseline := ledger.NaiveBaseline(transactions, a.Config.Engine.MarginRate, a.Config.Engine.RerouteCost)
		printBaseline(baseline, outcome)
	}
	return nil
}

// storeSink adapts the storage layer to the engine's persistence interface.
type storeSink struct {
	store *storage.Store
}

func newStoreSink(store *storage.Store) engine.DecisionSink {
	if store == nil {
		return nil
	}
	return &storeSink{store: store}
}

func (s *storeSink) Persist(ctx context.Context, entry ledger.Entry) error {
	_, err := s.store.InsertDecision(ctx, storage.NewDecisionRecord(entry))
	return err
}

func printOutcome(runID string, o ledger.Outcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", runID)
	fmt.Fprintf(w, "decisions\t%d\n", o.Decisions)
	fmt.Fprintf(w, "accepted\t%d\n", o.Accepted)
	fmt.Fprintf(w, "overridden\t%d\n", o.Overridden)
	fmt.Fprintf(w, "patterns discovered\t%d\n", o.PatternsDiscovered)
	fmt.Fprintf(w, "total cost\t%s\n", o.TotalCost.StringFixed(2))
	fmt.Fprintf(w, "revenue saved\t%s\n", o.TotalRevenueSaved.StringFixed(2))
	fmt.Fprintf(w, "net profit\t%s\n", o.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "capital preserved\t%s\n", o.CapitalPreserved.StringFixed(2))
	for action, count := range o.CountsPerAction {
		fmt.Fprintf(w, "action %s\t%d\n", action, count)
	}
	w.Flush()
}

func printBaseline(b ledger.Baseline, o ledger.Outcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "--\tnaive reroute-everything baseline")
	fmt.Fprintf(w, "baseline failures rerouted\t%d\n", b.Failures)
	fmt.Fprintf(w, "baseline cost\t%s\n", b.TotalCost.StringFixed(2))
	fmt.Fprintf(w, "baseline net profit\t%s\n", b.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "advantage over baseline\t%s\n", o.NetProfit.Sub(b.NetProfit).StringFixed(2))
	w.Flush()
}
