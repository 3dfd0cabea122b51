// Package backtest drives sessions over event sources, one independent
// worker per security. Workers share no mutable state; each security's
// events are consumed in order by exactly one session.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/feed"
)

// Session is the per-security state machine contract shared by the
// market-making engine and the closing-auction subsystem.
type Session interface {
	ProcessEvent(ev domain.MarketEvent)
	Finish() (domain.Result, error)
}

// SessionFactory builds a fresh session for one security.
type SessionFactory func(security string) Session

// Runner fans securities out over a bounded worker pool.
type Runner struct {
	factory SessionFactory
	workers int
	logger  *slog.Logger
}

// NewRunner creates a runner. workers <= 0 defaults to the CPU count.
func NewRunner(factory SessionFactory, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{
		factory: factory,
		workers: workers,
		logger:  logger.With(slog.String("component", "backtest")),
	}
}

// Run consumes every source to exhaustion and returns the per-security
// results sorted by security name. An unresolved pending flatten is reported
// in the result and logged, not treated as fatal; any other session or feed
// error aborts the run.
func (r *Runner) Run(ctx context.Context, sources []feed.Source) ([]domain.Result, error) {
	if len(sources) == 0 {
		return nil, domain.ErrNoEvents
	}

	var (
		mu      sync.Mutex
		results []domain.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			res, err := r.runOne(gctx, src)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Security < results[j].Security })
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, src feed.Source) (domain.Result, error) {
	security := src.Security()
	sess := r.factory(security)

	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, domain.ErrFeedClosed) {
			break
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("backtest: %s: next event: %w", security, err)
		}
		sess.ProcessEvent(ev)
	}

	res, err := sess.Finish()
	if errors.Is(err, domain.ErrUnresolvedFlatten) {
		r.logger.Warn("pending flatten unresolved at end of stream",
			slog.String("security", security),
			slog.Float64("position", res.Position),
		)
		return res, nil
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("backtest: %s: finish: %w", security, err)
	}

	r.logger.Info("security complete",
		slog.String("security", security),
		slog.Int64("events", res.Counts.Rows),
		slog.Int("fills", len(res.Fills)),
		slog.Float64("position", res.Position),
		slog.Float64("realized_pnl", res.RealizedPnL),
	)
	return res, nil
}
