package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent persisted decisions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errNoDatabase
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentDecisions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no decisions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Window (UTC)\tSegment\tRate%\tSignal\tProposed\tFinal\tAccepted\tOverride\tNet")

	for _, r := range records {
		segment := fmt.Sprintf("%s %s %s", r.Counterparty, r.InstrumentType, r.AmountBucket)
		fmt.Fprintf(
			writer,
			"%s\t%s\t%.1f\t%s\t%s\t%s\t%t\t%s\t%s\n",
			r.WindowStart.UTC().Format(time.RFC3339),
			segment,
			r.FailureRate*100,
			r.TemporalSignal,
			r.ProposedAction,
			r.FinalAction,
			r.Accepted,
			sanitizeInline(r.OverrideReason),
			r.NetBenefit.StringFixed(2),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
