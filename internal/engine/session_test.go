package engine_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mmsim/internal/config"
	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/engine"
	"github.com/alanyoungcy/mmsim/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.SecurityConfig {
	return config.SecurityConfig{
		QuoteSize:         50,
		MaxPosition:       100,
		MinQuoteNotional:  1000,
		RefillIntervalSec: 60,
	}.Resolve()
}

func at(day, h, m, s int) time.Time {
	return time.Date(2024, 6, day, h, m, s, 0, time.UTC)
}

func ev(ts time.Time, kind domain.EventKind, price, volume float64) domain.MarketEvent {
	return domain.MarketEvent{Timestamp: ts, Kind: kind, Price: price, Volume: volume}
}

// TestQueueScenario runs the canonical two-stage queue sequence: a deep
// print chews through the ahead quantity and fills our bid; a later small
// print at our ask, with its ahead already consumed, fills us directly.
func TestQueueScenario(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 1), domain.EventAsk, 10.10, 200))

	// 300 prints at our bid: 200 ahead, then 50 of ours.
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 300))

	fills := s.Account().Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, domain.Buy, fills[0].Side)
	assert.Equal(t, 10.00, fills[0].Price)
	assert.Equal(t, 50.0, fills[0].Quantity)
	assert.Equal(t, 0.0, fills[0].RealizedPnL)
	assert.Equal(t, 50.0, s.Account().Position())

	// 200 prints at our ask: consumes exactly the ahead quantity, no fill.
	s.ProcessEvent(ev(at(3, 11, 0, 10), domain.EventTrade, 10.10, 200))
	require.Len(t, s.Account().Fills(), 1)

	// 10 more at our ask fills us directly; boundary price is inclusive.
	s.ProcessEvent(ev(at(3, 11, 0, 30), domain.EventTrade, 10.10, 10))

	fills = s.Account().Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, domain.Sell, fills[1].Side)
	assert.Equal(t, 10.10, fills[1].Price)
	assert.Equal(t, 10.0, fills[1].Quantity)
	assert.InDelta(t, (10.10-10.00)*10, fills[1].RealizedPnL, 1e-9)
	assert.Equal(t, 40.0, s.Account().Position())

	res, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, "baseline", res.Strategy)
	assert.Equal(t, 40.0, res.Position)
	assert.InDelta(t, 1.00, res.RealizedPnL, 1e-9)
	assert.Equal(t, int64(5), res.Counts.Rows)
	assert.Equal(t, int64(3), res.Counts.Trades)
	require.Len(t, res.MarketDates, 1)

	var sum float64
	for _, f := range res.Fills {
		sum += f.SignedQuantity()
	}
	assert.InDelta(t, res.Position, sum, 1e-9)
}

func TestLiquidityGateSuppressesThinSide(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	// 50 x 10.00 = 500 notional, below the 1000 threshold: no displayed
	// quote even though headroom would allow one.
	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 50))
	s.ProcessEvent(ev(at(3, 11, 0, 5), domain.EventTrade, 10.00, 100))

	assert.Empty(t, s.Account().Fills())
	assert.Equal(t, 0.0, s.Account().Position())
}

// TestCooldownOffersOnlyRemaining drives the price-follow policy through a
// partial fill: during the cooldown only the unfilled remainder is offered,
// afterwards the full size returns.
func TestCooldownOffersOnlyRemaining(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewPriceFollow(), testLogger())

	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 1), domain.EventAsk, 10.10, 200))

	// Partial fill: 200 ahead + 20 of our 50.
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 220))
	fills := s.Account().Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, 20.0, fills[0].Quantity)

	// Still in cooldown: the re-quote may offer only the remaining 30, and
	// our queue position at the unchanged price is retained.
	s.ProcessEvent(ev(at(3, 11, 0, 10), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 15), domain.EventTrade, 10.00, 50))
	fills = s.Account().Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, 30.0, fills[1].Quantity)
	assert.Equal(t, 50.0, s.Account().Position())

	// Cooldown elapsed: full size restored, behind the fresh level.
	s.ProcessEvent(ev(at(3, 11, 1, 20), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 1, 25), domain.EventTrade, 10.00, 250))
	fills = s.Account().Fills()
	require.Len(t, fills, 3)
	assert.Equal(t, 50.0, fills[2].Quantity)
	assert.Equal(t, 100.0, s.Account().Position())

	// At the position cap the bid side offers nothing.
	s.ProcessEvent(ev(at(3, 11, 2, 30), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 2, 35), domain.EventTrade, 10.00, 300))
	assert.Len(t, s.Account().Fills(), 3)
}

func TestEODPendingFlattenResolvedByTrade(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 1), domain.EventAsk, 10.10, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 300))
	require.Equal(t, 50.0, s.Account().Position())

	// Cutoff reached on a non-trade event: the flatten is deferred.
	s.ProcessEvent(ev(at(3, 14, 56, 0), domain.EventBid, 9.90, 100))
	assert.Equal(t, 50.0, s.Account().Position())

	// Non-trade events are consumed while the flatten is pending.
	s.ProcessEvent(ev(at(3, 14, 56, 5), domain.EventAsk, 10.10, 50))
	assert.Equal(t, 50.0, s.Account().Position())

	// The first trade supplies the flatten price.
	s.ProcessEvent(ev(at(3, 14, 56, 10), domain.EventTrade, 9.95, 10))
	assert.Equal(t, 0.0, s.Account().Position())

	res, err := s.Finish()
	require.NoError(t, err)
	assert.False(t, res.UnresolvedFlatten)

	fills := res.Fills
	require.Len(t, fills, 2)
	assert.Equal(t, domain.FillEODFlatten, fills[1].Kind)
	assert.Equal(t, 9.95, fills[1].Price)
	assert.InDelta(t, (9.95-10.00)*50, fills[1].RealizedPnL, 1e-9)
}

func TestUnresolvedFlattenSurfaced(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 300))
	require.Equal(t, 50.0, s.Account().Position())

	s.ProcessEvent(ev(at(3, 14, 56, 0), domain.EventBid, 9.90, 100))

	res, err := s.Finish()
	assert.ErrorIs(t, err, domain.ErrUnresolvedFlatten)
	assert.True(t, res.UnresolvedFlatten)
	assert.Equal(t, 50.0, res.Position)
}

func TestNewDayClearsBookKeepsPosition(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 1), domain.EventAsk, 10.10, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 300))
	require.Equal(t, 50.0, s.Account().Position())
	require.Equal(t, 1, s.Book().Levels(domain.SideAsk))

	// First event of the next day clears the book but not the position,
	// and timers reset so the side quotes immediately.
	s.ProcessEvent(ev(at(4, 11, 0, 0), domain.EventBid, 10.00, 200))
	assert.Equal(t, 50.0, s.Account().Position())
	assert.Equal(t, 0, s.Book().Levels(domain.SideAsk))
	assert.Equal(t, 1, s.Book().Levels(domain.SideBid))

	// Headroom accounts for the carried position: only 50 more fills.
	s.ProcessEvent(ev(at(4, 11, 0, 5), domain.EventTrade, 10.00, 300))
	assert.Equal(t, 100.0, s.Account().Position())
}

func TestOpeningAuctionSuppressesFills(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	s.ProcessEvent(ev(at(3, 9, 45, 0), domain.EventBid, 9.00, 500))
	s.ProcessEvent(ev(at(3, 9, 50, 0), domain.EventTrade, 9.00, 300))

	// The book builds but auction prints never fill.
	assert.Equal(t, 1, s.Book().Levels(domain.SideBid))
	require.NotNil(t, s.Book().LastTrade())
	assert.Empty(t, s.Account().Fills())
}

func TestSilentPeriodIgnoresEvents(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewBaseline(), testLogger())

	s.ProcessEvent(ev(at(3, 10, 2, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 10, 3, 0), domain.EventTrade, 10.00, 300))

	assert.Equal(t, 0, s.Book().Levels(domain.SideBid))
	assert.Empty(t, s.Account().Fills())

	res, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Counts.Rows)
}

func TestStopLossLiquidatesAcrossEvents(t *testing.T) {
	s := engine.NewSession("EMAAR", testConfig(), strategy.NewPriceFollow(), testLogger(),
		engine.WithStopLoss(strategy.NewStopLoss(2.0)))

	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 1), domain.EventAsk, 10.10, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 300))
	require.Equal(t, 50.0, s.Account().Position())

	// Mid drops to 9.75: a 2.5% unrealized loss triggers the stop; only 30
	// of bid depth is available, so the liquidation stays pending.
	s.ProcessEvent(ev(at(3, 11, 0, 10), domain.EventBid, 9.40, 30))
	assert.Equal(t, 20.0, s.Account().Position())

	// Fresh bid depth finishes the liquidation.
	s.ProcessEvent(ev(at(3, 11, 0, 12), domain.EventBid, 9.40, 30))
	assert.Equal(t, 0.0, s.Account().Position())

	res, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, res.StopLossTriggers)
	assert.InDelta(t, (9.40-10.00)*50, res.RealizedPnL, 1e-9)

	fills := res.Fills
	require.Len(t, fills, 3)
	assert.Equal(t, domain.FillStopLoss, fills[1].Kind)
	assert.Equal(t, domain.FillStopLoss, fills[2].Kind)
	assert.Equal(t, domain.Sell, fills[1].Side)
}

func TestMaxNotionalCapsPosition(t *testing.T) {
	cfg := config.SecurityConfig{
		QuoteSize:         50,
		MaxPosition:       100,
		MaxNotional:       300,
		MinQuoteNotional:  1000,
		RefillIntervalSec: 60,
	}.Resolve()
	s := engine.NewSession("EMAAR", cfg, strategy.NewBaseline(), testLogger())

	// The bid is placed with only one side of the book known: the mid is
	// the bid itself, so the notional cap allows floor(300/10.00) = 30.
	s.ProcessEvent(ev(at(3, 11, 0, 0), domain.EventBid, 10.00, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 1), domain.EventAsk, 10.10, 200))
	s.ProcessEvent(ev(at(3, 11, 0, 2), domain.EventTrade, 10.00, 300))

	fills := s.Account().Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, 30.0, fills[0].Quantity)
}
