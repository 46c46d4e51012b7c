package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"payment-sentinel/internal/storage"
)

// Export renders persisted decisions as CSV and/or a PNG chart of failure
// rates and net benefit over time.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

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

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Engine.WindowWidth)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListDecisionsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no decisions found for export window")
		return nil
	}

	downsampled := downsampleDecisions(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting decisions")

	if opts.CSVPath != "" {
		if err := writeDecisionsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDecisionsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleDecisions(records []storage.DecisionRecord, max int) []storage.DecisionRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.DecisionRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeDecisionsCSV(path string, records []storage.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"window_start", "run_id", "seq", "counterparty", "instrument_type", "amount_bucket",
		"cluster_count", "avg_amount", "failure_rate", "error_codes", "temporal_signal",
		"proposed_action", "final_action", "accepted", "override_reason",
		"confidence", "net_benefit", "capital_preserved", "source",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		record := []string{
			r.WindowStart.UTC().Format(time.RFC3339),
			r.RunID,
			strconv.Itoa(r.Seq),
			r.Counterparty,
			r.InstrumentType,
			r.AmountBucket,
			strconv.Itoa(r.ClusterCount),
			r.AvgAmount.StringFixed(2),
			strconv.FormatFloat(r.FailureRate, 'f', 4, 64),
			strings.Join(r.ErrorCodes, ";"),
			r.TemporalSignal,
			r.ProposedAction,
			r.FinalAction,
			strconv.FormatBool(r.Accepted),
			r.OverrideReason,
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			r.NetBenefit.StringFixed(2),
			r.CapitalPreserved.StringFixed(2),
			r.Source,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeDecisionsPNG(path string, records []storage.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	failureRate := make([]float64, len(records))
	netBenefit := make([]float64, len(records))

	for i, r := range records {
		x[i] = r.WindowStart
		failureRate[i] = r.FailureRate * 100
		netBenefit[i] = r.NetBenefit.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Failure rate (%)",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Net benefit",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Failure rate %",
				XValues: x,
				YValues: failureRate,
			},
			chart.TimeSeries{
				Name:    "Net benefit",
				XValues: x,
				YValues: netBenefit,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
