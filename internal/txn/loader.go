package txn

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

// BatchStats summarises one ingested batch, including the data-quality count
// of malformed records that were skipped.
type BatchStats struct {
	Total     int
	Loaded    int
	Malformed int
}

// LoadBatch reads a JSON array of transaction records from path. Malformed
// records are skipped and counted; they never fail the batch.
func LoadBatch(path string, logger zerolog.Logger) ([]Transaction, BatchStats, error) {
	log := logger.With().Str("component", "loader").Logger()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, BatchStats{}, fmt.Errorf("read batch file: %w", err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, BatchStats{}, fmt.Errorf("parse batch file: %w", err)
	}

	return decodeRows(rows, log)
}

func decodeRows(rows []json.RawMessage, log zerolog.Logger) ([]Transaction, BatchStats, error) {
	stats := BatchStats{Total: len(rows)}
	transactions := make([]Transaction, 0, len(rows))

	for i, row := range rows {
		var t Transaction
		if err := json.Unmarshal(row, &t); err != nil {
			stats.Malformed++
			log.Debug().Int("row", i).Err(err).Msg("skipping undecodable record")
			continue
		}
		if err := t.Validate(); err != nil {
			stats.Malformed++
			log.Debug().Int("row", i).Str("transaction_id", t.ID).Err(err).Msg("skipping malformed record")
			continue
		}
		transactions = append(transactions, t)
	}
	stats.Loaded = len(transactions)

	// Stable chronological order so windowing is deterministic regardless of
	// the producer's ordering.
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Timestamp.Before(transactions[j].Timestamp)
	})

	if stats.Malformed > 0 {
		log.Warn().Int("malformed", stats.Malformed).Int("loaded", stats.Loaded).Msg("data-quality: malformed records skipped")
	}

	return transactions, stats, nil
}
