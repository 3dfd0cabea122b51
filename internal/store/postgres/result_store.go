package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// ResultStore persists per-security run results and their fills.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// RunRecord is a persisted run summary row.
type RunRecord struct {
	RunID             string
	Security          string
	Strategy          string
	Position          float64
	RealizedPnL       float64
	TotalPnL          float64
	FillCount         int
	EventRows         int64
	TradeEvents       int64
	StopLossTriggers  int
	UnresolvedFlatten bool
	CreatedAt         time.Time
}

// SaveResult stores one result under runID: a summary row plus all its
// fills. Re-saving the same (runID, security) pair is a no-op.
func (s *ResultStore) SaveResult(ctx context.Context, runID string, res domain.Result) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save result: %w", err)
	}
	defer tx.Rollback(ctx)

	const runQuery = `
		INSERT INTO runs (
			run_id, security, strategy, position, realized_pnl, total_pnl,
			fill_count, event_rows, trade_events, stop_loss_triggers,
			unresolved_flatten
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, security) DO NOTHING`
	if _, err := tx.Exec(ctx, runQuery,
		runID, res.Security, res.Strategy, res.Position, res.RealizedPnL,
		res.TotalPnL, len(res.Fills), res.Counts.Rows, res.Counts.Trades,
		res.StopLossTriggers, res.UnresolvedFlatten,
	); err != nil {
		return fmt.Errorf("postgres: insert run %s/%s: %w", runID, res.Security, err)
	}

	if len(res.Fills) > 0 {
		batch := &pgx.Batch{}
		const fillQuery = `
			INSERT INTO fills (
				run_id, security, fill_id, timestamp, side, kind,
				price, quantity, realized_pnl, position, cumulative_pnl
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (run_id, security, fill_id) DO NOTHING`
		for _, f := range res.Fills {
			batch.Queue(fillQuery,
				runID, res.Security, f.ID, f.Timestamp, string(f.Side),
				string(f.Kind), f.Price, f.Quantity, f.RealizedPnL,
				f.Position, f.CumulativePnL,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for i := range res.Fills {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close fill batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save result: %w", err)
	}
	return nil
}

// ListRuns returns the most recent run summaries for a security, newest
// first.
func (s *ResultStore) ListRuns(ctx context.Context, security string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT run_id, security, strategy, position, realized_pnl, total_pnl,
		       fill_count, event_rows, trade_events, stop_loss_triggers,
		       unresolved_flatten, created_at
		FROM runs
		WHERE security = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, security, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.RunID, &r.Security, &r.Strategy, &r.Position, &r.RealizedPnL,
			&r.TotalPnL, &r.FillCount, &r.EventRows, &r.TradeEvents,
			&r.StopLossTriggers, &r.UnresolvedFlatten, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
