package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mmsim/internal/backtest"
	"github.com/alanyoungcy/mmsim/internal/cache/redis"
	"github.com/alanyoungcy/mmsim/internal/closing"
	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/engine"
	"github.com/alanyoungcy/mmsim/internal/feed"
	"github.com/alanyoungcy/mmsim/internal/strategy"
)

// BacktestMode replays tick files from the configured data directory through
// one session per security and persists the results.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Backtest.DataDir == "" {
		return fmt.Errorf("app: backtest mode requires backtest.data_dir")
	}
	securities, err := a.securities()
	if err != nil {
		return err
	}

	sources, err := feed.OpenDir(a.cfg.Backtest.DataDir, securities)
	if err != nil {
		return err
	}

	factory, err := a.sessionFactory(nil)
	if err != nil {
		return err
	}
	runner := backtest.NewRunner(factory, a.cfg.Backtest.Workers, a.logger)

	started := time.Now()
	results, err := runner.Run(ctx, sources)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "backtest complete",
		slog.Int("securities", len(results)),
		slog.Duration("elapsed", time.Since(started)),
	)

	return a.persistResults(ctx, deps, results)
}

// StreamMode runs live sessions against the websocket tick feed until the
// context is cancelled, then finishes the sessions and persists what they
// accumulated. Fills are published to the fill bus as they happen.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Feed.WsURL == "" {
		return fmt.Errorf("app: stream mode requires feed.ws_url")
	}
	securities, err := a.securities()
	if err != nil {
		return err
	}

	wsFeed := feed.NewWSFeed(
		a.cfg.Feed.WsURL,
		securities,
		time.Duration(a.cfg.Feed.ReconnectSec)*time.Second,
		a.logger,
	)

	var hook fillHook
	if deps.FillBus != nil {
		hook = func(security string) func(domain.Fill) {
			return func(fill domain.Fill) {
				pubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := deps.FillBus.Publish(pubCtx, security, fill); err != nil {
					a.logger.Warn("fill publish failed",
						slog.String("security", security),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
	factory, err := a.sessionFactory(hook)
	if err != nil {
		return err
	}
	runner := backtest.NewRunner(factory, len(securities), a.logger)

	sources := make([]feed.Source, 0, len(securities))
	for _, sec := range securities {
		sources = append(sources, wsFeed.Source(sec))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := wsFeed.Run(gctx)
		if gctx.Err() != nil {
			// Cancellation closes the event channels; sessions then drain
			// and finish rather than abort.
			return nil
		}
		return err
	})

	var results []domain.Result
	g.Go(func() error {
		// Sessions outlive the cancel so accumulated state is flushed.
		var runErr error
		results, runErr = runner.Run(context.WithoutCancel(gctx), sources)
		return runErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return a.persistResults(context.WithoutCancel(ctx), deps, results)
}

// fillHook builds the per-security fill callback, nil when fills are not
// published anywhere.
type fillHook func(security string) func(domain.Fill)

// sessionFactory builds per-security sessions for the configured strategy
// variant.
func (a *App) sessionFactory(hook fillHook) (backtest.SessionFactory, error) {
	variant, err := strategy.NewRegistry().Get(a.cfg.Strategy.Name)
	if err != nil {
		return nil, err
	}

	return func(security string) backtest.Session {
		secCfg := a.cfg.ResolveSecurity(security)

		if variant.ClosingAuction {
			sess := closing.NewSession(security, secCfg, a.logger)
			if hook != nil {
				sess.Account().SetFillHook(hook(security))
			}
			return sess
		}

		var opts []engine.Option
		if variant.UseStopLoss {
			opts = append(opts, engine.WithStopLoss(strategy.NewStopLoss(secCfg.StopLossThresholdPct)))
		}
		sess := engine.NewSession(security, secCfg, variant.Policy, a.logger, opts...)
		if hook != nil {
			sess.Account().SetFillHook(hook(security))
		}
		return sess
	}, nil
}

// securities returns the configured security names in stable order.
func (a *App) securities() ([]string, error) {
	if len(a.cfg.Securities) == 0 {
		return nil, fmt.Errorf("app: no securities configured")
	}
	names := make([]string, 0, len(a.cfg.Securities))
	for name := range a.cfg.Securities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// persistResults logs every result and writes it to whichever sinks are
// wired. Sink failures are logged but do not fail the run; the results have
// already been computed and reported.
func (a *App) persistResults(ctx context.Context, deps *Dependencies, results []domain.Result) error {
	runID := uuid.NewString()
	finishedAt := time.Now().UTC()

	for _, res := range results {
		a.logger.InfoContext(ctx, "result",
			slog.String("run_id", runID),
			slog.String("security", res.Security),
			slog.String("strategy", res.Strategy),
			slog.Float64("position", res.Position),
			slog.Float64("realized_pnl", res.RealizedPnL),
			slog.Float64("total_pnl", res.TotalPnL),
			slog.Int("fills", len(res.Fills)),
			slog.Int("stop_loss_triggers", res.StopLossTriggers),
			slog.Bool("unresolved_flatten", res.UnresolvedFlatten),
		)

		if deps.ResultStore != nil {
			if err := deps.ResultStore.SaveResult(ctx, runID, res); err != nil {
				a.logger.Error("result store save failed",
					slog.String("security", res.Security),
					slog.String("error", err.Error()),
				)
			}
		}
		if deps.ResultCache != nil {
			summary := redis.NewSummary(runID, res, finishedAt)
			if err := deps.ResultCache.Set(ctx, summary); err != nil {
				a.logger.Error("summary cache set failed",
					slog.String("security", res.Security),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if deps.Archiver != nil && len(results) > 0 {
		if err := deps.Archiver.ArchiveRun(ctx, runID, a.cfg.Strategy.Name, finishedAt, results); err != nil {
			a.logger.Error("archive failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
