package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertDecisionSQL = `INSERT INTO decisions (
        run_id,
        seq,
        window_start,
        window_end,
        counterparty,
        instrument_type,
        amount_bucket,
        cluster_count,
        avg_amount,
        failure_rate,
        error_codes,
        temporal_signal,
        proposed_action,
        final_action,
        accepted,
        override_reason,
        confidence,
        net_benefit,
        capital_preserved,
        source,
        justification,
        decided_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
    )
    RETURNING id;`

	listRecentDecisionsSQL = `SELECT
        id, run_id, seq, window_start, window_end,
        counterparty, instrument_type, amount_bucket,
        cluster_count, avg_amount, failure_rate, error_codes,
        temporal_signal, proposed_action, final_action,
        accepted, override_reason, confidence,
        net_benefit, capital_preserved, source, justification,
        decided_at, created_at
    FROM decisions
    ORDER BY decided_at DESC, seq DESC
    LIMIT $1;`

	listDecisionsBetweenSQL = `SELECT
        id, run_id, seq, window_start, window_end,
        counterparty, instrument_type, amount_bucket,
        cluster_count, avg_amount, failure_rate, error_codes,
        temporal_signal, proposed_action, final_action,
        accepted, override_reason, confidence,
        net_benefit, capital_preserved, source, justification,
        decided_at, created_at
    FROM decisions
    WHERE window_start >= $1
      AND window_start < $2
    ORDER BY window_start, seq;`

	countDecisionsSQL = `SELECT COUNT(*) FROM decisions;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DecisionStore defines operations for decision-ledger persistence.
type DecisionStore interface {
	InsertDecision(ctx context.Context, record DecisionRecord) (int64, error)
	ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)
	ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error)
	CountDecisions(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers used to keep runs single-writer.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the persisted decision ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertDecision appends one decision row and returns its id.
func (s *Store) InsertDecision(ctx context.Context, r DecisionRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	err = pool.QueryRow(ctx, insertDecisionSQL,
		r.RunID,
		r.Seq,
		r.WindowStart,
		r.WindowEnd,
		r.Counterparty,
		r.InstrumentType,
		r.AmountBucket,
		r.ClusterCount,
		r.AvgAmount,
		r.FailureRate,
		r.ErrorCodes,
		r.TemporalSignal,
		r.ProposedAction,
		r.FinalAction,
		r.Accepted,
		r.OverrideReason,
		r.Confidence,
		r.NetBenefit,
		r.CapitalPreserved,
		r.Source,
		r.Justification,
		r.DecidedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert decision: %w", err)
	}
	return id, nil
}

// ListRecentDecisions returns the newest rows first.
func (s *Store) ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentDecisionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ListDecisionsBetween returns rows whose window starts in [from, to).
func (s *Store) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listDecisionsBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list decisions between: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// CountDecisions reports the total number of persisted decisions.
func (s *Store) CountDecisions(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := pool.QueryRow(ctx, countDecisionsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func scanDecisions(rows pgx.Rows) ([]DecisionRecord, error) {
	var records []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		if err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Seq,
			&r.WindowStart,
			&r.WindowEnd,
			&r.Counterparty,
			&r.InstrumentType,
			&r.AmountBucket,
			&r.ClusterCount,
			&r.AvgAmount,
			&r.FailureRate,
			&r.ErrorCodes,
			&r.TemporalSignal,
			&r.ProposedAction,
			&r.FinalAction,
			&r.Accepted,
			&r.OverrideReason,
			&r.Confidence,
			&r.NetBenefit,
			&r.CapitalPreserved,
			&r.Source,
			&r.Justification,
			&r.DecidedAt,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision rows: %w", err)
	}
	return records, nil
}

var _ DecisionStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
