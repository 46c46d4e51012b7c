// Package engine drives the per-window evaluation cycle: cluster the batch,
// classify trends, obtain a proposal per cluster, arbitrate it, and record
// the decision. One Engine instance owns one run.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"payment-sentinel/internal/alerting"
	"payment-sentinel/internal/config"
	"payment-sentinel/internal/ledger"
	"payment-sentinel/internal/oracle"
	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/segment"
	"payment-sentinel/internal/trend"
	"payment-sentinel/internal/window"
)

// counterpartyKeyPrefix namespaces counterparty-rollup trend histories apart
// from segment-level ones in the shared detector.
const counterpartyKeyPrefix = "cp|"

// DecisionSink persists ledger entries as they are appended. Persistence is
// write-through and best-effort: the in-memory ledger stays authoritative.
type DecisionSink interface {
	Persist(ctx context.Context, entry ledger.Entry) error
}

// Params wires the engine's collaborators. Proposer is the gated oracle;
// Fallback is consulted only once the oracle reports ErrUnavailable. Sink and
// Notifier may be nil.
type Params struct {
	Config   config.EngineConfig
	Proposer oracle.Proposer
	Fallback oracle.Proposer
	Ledger   *ledger.Ledger
	Sink     DecisionSink
	Notifier alerting.Notifier
	Channels []string
	Logger   zerolog.Logger
}

// Engine evaluates windows strictly in order; within a window, cluster
// evaluations run concurrently and the ledger serializes their results.
type Engine struct {
	cfg        config.EngineConfig
	aggregator *segment.Aggregator
	detector   *trend.Detector
	validator  *policy.Validator
	proposer   oracle.Proposer
	fallback   oracle.Proposer
	ledger     *ledger.Ledger
	sink       DecisionSink
	notifier   alerting.Notifier
	channels   []string
	logger     zerolog.Logger
}

// New constructs an engine for one run.
func New(p Params) *Engine {
	return &Engine{
		cfg:        p.Config,
		aggregator: segment.NewAggregator(p.Config.MinClusterSize),
		detector: trend.NewDetector(trend.Options{
			HistorySize:      p.Config.HistorySize,
			SpikeMultiplier:  p.Config.SpikeMultiplier,
			MinAbsoluteDelta: p.Config.MinAbsoluteDelta,
		}),
		validator: policy.NewValidator(p.Config.MarginRate, p.Config.RerouteCost, p.Config.ConfidenceThreshold),
		proposer:  p.Proposer,
		fallback:  p.Fallback,
		ledger:    p.Ledger,
		sink:      p.Sink,
		notifier:  p.Notifier,
		channels:  p.Channels,
		logger:    p.Logger.With().Str("component", "engine").Logger(),
	}
}

// Ledger exposes the run's decision log for replay.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Detector exposes the trend state, used by diagnostics.
func (e *Engine) Detector() *trend.Detector { return e.detector }

// Run processes batches strictly in window order. A later window's
// classifications must observe every earlier window's committed rates.
func (e *Engine) Run(ctx context.Context, batches []window.Batch) error {
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.ProcessWindow(ctx, b); err != nil {
			return fmt.Errorf("process window %s: %w", b.Window.Label(), err)
		}
	}
	return nil
}

// ProcessWindow runs one full evaluation cycle for a window's transactions.
// Trend history is committed only after every cluster in the window has been
// classified and decided, so all of a window's classifications read the same
// pre-window baseline.
func (e *Engine) ProcessWindow(ctx context.Context, batch window.Batch) error {
	clusters := e.aggregator.Aggregate(batch.Transactions, batch.Window)
	cpRates := segment.CounterpartyRates(batch.Transactions, batch.Window)
	ranked := segment.RankByImpact(clusters, e.cfg.MaxClustersPerWindow)

	e.logger.Info().
		Str("window", batch.Window.Label()).
		Int("transactions", len(batch.Transactions)).
		Int("clusters", len(clusters)).
		Int("evaluated", len(ranked)).
		Msg("window aggregated")

	g, gctx := errgroup.WithContext(ctx)
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, cluster := range ranked {
		cluster := cluster
		signal := e.classify(cluster, cpRates)
		g.Go(func() error {
			return e.evaluate(gctx, cluster, signal)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Window close: commit observed rates so the next window's baseline
	// includes this one. Segment histories first, then counterparty rollups.
	for _, c := range clusters {
		e.detector.Commit(c.Key.String(), c.FailureRate)
	}
	for cp, rate := range cpRates {
		e.detector.Commit(counterpartyKeyPrefix+cp, rate)
	}
	return nil
}

// classify resolves the cluster's temporal signal. A counterparty-wide spike
// dominates the segment-level reading: when the whole counterparty is
// collapsing, every one of its segments is treated as spiking regardless of
// the segment's own history.
func (e *Engine) classify(cluster segment.FailureCluster, cpRates map[string]float64) trend.Signal {
	cp := cluster.Key.Counterparty
	if rate, ok := cpRates[cp]; ok {
		if e.detector.Classify(counterpartyKeyPrefix+cp, rate) == trend.SignalSpike {
			return trend.SignalSpike
		}
	}
	return e.detector.Classify(cluster.Key.String(), cluster.FailureRate)
}

func (e *Engine) evaluate(ctx context.Context, cluster segment.FailureCluster, signal trend.Signal) error {
	req := oracle.Request{
		Cluster:           cluster,
		HistoricalContext: e.historicalContext(cluster),
	}

	proposal, source, err := e.propose(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Unusable proposal after the retry budget: the zero-value proposal
		// fails well-formedness and the validator records the malformed
		// override. The cluster is never silently skipped.
		e.logger.Warn().
			Err(err).
			Str("segment", cluster.Key.String()).
			Msg("no usable proposal; recording malformed decision")
		proposal = policy.ProposedAction{}
		source = policy.SourceOracle
	}

	decision := e.validator.Validate(cluster, signal, proposal, source)
	entry := e.ledger.Append(decision)

	e.logger.Info().
		Int("seq", entry.Seq).
		Str("segment", cluster.Key.String()).
		Str("signal", string(signal)).
		Str("proposed", string(decision.Proposal.Action)).
		Str("final", string(decision.FinalAction)).
		Bool("accepted", decision.Accepted).
		Str("override", decision.OverrideReason).
		Str("source", decision.Source).
		Str("net_benefit", decision.NetBenefit.StringFixed(2)).
		Msg("decision recorded")

	if e.sink != nil {
		if err := e.sink.Persist(ctx, entry); err != nil {
			e.logger.Warn().Err(err).Int("seq", entry.Seq).Msg("decision persistence failed; ledger remains authoritative")
		}
	}

	if e.notifier != nil && decision.FinalAction.Escalation() {
		if err := e.notify(ctx, decision); err != nil {
			e.logger.Warn().Err(err).Int("seq", entry.Seq).Msg("alert dispatch failed")
		}
	}
	return nil
}

// propose runs the oracle with fallback semantics: once the circuit breaker
// reports ErrUnavailable the deterministic rule proposer takes over for the
// rest of the run.
func (e *Engine) propose(ctx context.Context, req oracle.Request) (policy.ProposedAction, string, error) {
	if e.proposer == nil {
		proposal, err := e.fallback.Propose(ctx, req)
		return proposal, policy.SourceFallback, err
	}

	proposal, err := e.proposer.Propose(ctx, req)
	if err == nil {
		return proposal, policy.SourceOracle, nil
	}
	if errors.Is(err, oracle.ErrUnavailable) && e.fallback != nil {
		proposal, ferr := e.fallback.Propose(ctx, req)
		return proposal, policy.SourceFallback, ferr
	}
	return policy.ProposedAction{}, policy.SourceOracle, err
}

// historicalContext renders the segment's prior-window rates for the oracle,
// oldest first, plus the baseline mean when enough points exist.
func (e *Engine) historicalContext(cluster segment.FailureCluster) map[string]float64 {
	history := e.detector.History(cluster.Key.String())
	if len(history) == 0 {
		return nil
	}

	ctx := make(map[string]float64, len(history)+1)
	for i, rate := range history {
		ctx[fmt.Sprintf("t-%d", len(history)-i)] = rate
	}
	if baseline, ok := e.detector.Baseline(cluster.Key.String()); ok {
		ctx["baseline"] = baseline
	}
	return ctx
}

func (e *Engine) notify(ctx context.Context, d policy.Decision) error {
	note := alerting.Notification{
		WindowStart:    d.Cluster.WindowStart,
		Segment:        d.Cluster.Description(),
		FinalAction:    string(d.FinalAction),
		Signal:         d.Signal,
		Severity:       alerting.SeverityFor(d.Signal),
		FailureRate:    d.Cluster.FailureRate,
		AffectedCount:  d.Cluster.Count,
		NetBenefit:     d.NetBenefit,
		OverrideReason: d.OverrideReason,
		Justification:  d.Proposal.Justification,
		Channels:       e.channels,
	}
	return e.notifier.Notify(ctx, note)
}
