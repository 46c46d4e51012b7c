package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"payment-sentinel/internal/alerting"
	"payment-sentinel/internal/oracle"
	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/segment"
	"payment-sentinel/internal/trend"
	"payment-sentinel/internal/window"
)

// Simulate pushes one synthetic cluster through the proposer and validator
// and prints the resulting decision, exercising the arbitration and alert
// paths without a transaction batch.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	signal := trend.Signal(opts.Signal)
	if !signal.Valid() {
		return fmt.Errorf("invalid signal %q", opts.Signal)
	}
	if opts.Count < 1 {
		return errors.New("count must be at least 1")
	}
	if opts.AvgAmount <= 0 {
		return errors.New("avg-amount must be positive")
	}
	if opts.FailureRate <= 0 || opts.FailureRate > 1 {
		return errors.New("failure-rate must be within (0,1]")
	}

	avgAmount := decimal.NewFromFloat(opts.AvgAmount)
	w := window.Of(time.Now(), a.Config.Engine.WindowWidth)
	cluster := segment.FailureCluster{
		Key: segment.Key{
			Counterparty:   opts.Counterparty,
			InstrumentType: opts.InstrumentType,
			AmountBucket:   segment.AmountBucket(avgAmount),
			WindowStart:    w.Start,
		},
		Count:       opts.Count,
		AvgAmount:   avgAmount,
		FailureRate: opts.FailureRate,
		ErrorCodes:  []string{"SIMULATED"},
		WindowStart: w.Start,
		WindowEnd:   w.End,
	}

	proposer := oracle.NewRuleProposer(a.Config.Engine.MarginRate, a.Config.Engine.RerouteCost)
	proposal, err := proposer.Propose(ctx, oracle.Request{Cluster: cluster})
	if err != nil {
		return err
	}

	validator := policy.NewValidator(
		a.Config.Engine.MarginRate,
		a.Config.Engine.RerouteCost,
		a.Config.Engine.ConfidenceThreshold,
	)
	decision := validator.Validate(cluster, signal, proposal, policy.SourceFallback)

	printDecision(decision)

	if notifier := a.newNotifier(); notifier != nil && decision.FinalAction.Escalation() {
		note := alerting.Notification{
			WindowStart:    cluster.WindowStart,
			Segment:        cluster.Description(),
			FinalAction:    string(decision.FinalAction),
			Signal:         decision.Signal,
			Severity:       alerting.SeverityFor(decision.Signal),
			FailureRate:    cluster.FailureRate,
			AffectedCount:  cluster.Count,
			NetBenefit:     decision.NetBenefit,
			OverrideReason: decision.OverrideReason,
			Justification:  decision.Proposal.Justification,
			Channels:       a.Config.Alerting.Channels,
		}
		if err := notifier.Notify(ctx, note); err != nil {
			return fmt.Errorf("dispatch simulated alert: %w", err)
		}
		a.Logger.Info().Msg("simulated alert dispatched")
	}
	return nil
}

func printDecision(d policy.Decision) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "segment\t%s\n", d.Cluster.Description())
	fmt.Fprintf(w, "signal\t%s\n", d.Signal)
	fmt.Fprintf(w, "proposed\t%s\n", d.Proposal.Action)
	fmt.Fprintf(w, "final\t%s\n", d.FinalAction)
	fmt.Fprintf(w, "accepted\t%t\n", d.Accepted)
	if d.OverrideReason != "" {
		fmt.Fprintf(w, "override\t%s\n", d.OverrideReason)
	}
	fmt.Fprintf(w, "net benefit\t%s\n", d.NetBenefit.StringFixed(2))
	if !d.CapitalPreserved.IsZero() {
		fmt.Fprintf(w, "capital preserved\t%s\n", d.CapitalPreserved.StringFixed(2))
	}
	fmt.Fprintf(w, "cost analysis\t%s\n", d.Proposal.CostAnalysis)
	w.Flush()
}
