package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

const summaryTTL = 24 * time.Hour

// Summary is the compact run outcome kept hot for dashboards.
type Summary struct {
	RunID             string    `json:"run_id"`
	Security          string    `json:"security"`
	Strategy          string    `json:"strategy"`
	Position          float64   `json:"position"`
	RealizedPnL       float64   `json:"realized_pnl"`
	TotalPnL          float64   `json:"total_pnl"`
	FillCount         int       `json:"fill_count"`
	StopLossTriggers  int       `json:"stop_loss_triggers"`
	UnresolvedFlatten bool      `json:"unresolved_flatten"`
	FinishedAt        time.Time `json:"finished_at"`
}

// NewSummary projects a result into its cached form.
func NewSummary(runID string, res domain.Result, finishedAt time.Time) Summary {
	return Summary{
		RunID:             runID,
		Security:          res.Security,
		Strategy:          res.Strategy,
		Position:          res.Position,
		RealizedPnL:       res.RealizedPnL,
		TotalPnL:          res.TotalPnL,
		FillCount:         len(res.Fills),
		StopLossTriggers:  res.StopLossTriggers,
		UnresolvedFlatten: res.UnresolvedFlatten,
		FinishedAt:        finishedAt,
	}
}

// ResultCache keeps the latest run summary per security with a 24-hour TTL.
//
// Key schema:
//
//	run:summary:{security} - JSON-serialized Summary of the latest run
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by the given Client.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.Underlying()}
}

func summaryKey(security string) string { return "run:summary:" + security }

// Set stores the latest summary for a security.
func (rc *ResultCache) Set(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal summary %s: %w", s.Security, err)
	}
	if err := rc.rdb.Set(ctx, summaryKey(s.Security), data, summaryTTL).Err(); err != nil {
		return fmt.Errorf("redis: set summary %s: %w", s.Security, err)
	}
	return nil
}

// Get retrieves the latest summary for a security. It returns
// domain.ErrNotFound when no summary is cached.
func (rc *ResultCache) Get(ctx context.Context, security string) (Summary, error) {
	data, err := rc.rdb.Get(ctx, summaryKey(security)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Summary{}, domain.ErrNotFound
		}
		return Summary{}, fmt.Errorf("redis: get summary %s: %w", security, err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("redis: unmarshal summary %s: %w", security, err)
	}
	return s, nil
}
