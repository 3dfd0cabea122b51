package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mmsim/internal/account"
	"github.com/alanyoungcy/mmsim/internal/domain"
)

var ts = time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)

func TestOpenOnlyFillRealizesNothing(t *testing.T) {
	a := account.New()

	fill, ok := a.Apply(ts, domain.Buy, 10.00, 50, domain.FillQuote)
	require.True(t, ok)

	assert.Equal(t, 0.0, fill.RealizedPnL)
	assert.Equal(t, 50.0, a.Position())
	assert.Equal(t, 10.00, a.EntryPrice())
	assert.Equal(t, 0.0, a.RealizedPnL())
}

func TestRoundTrip(t *testing.T) {
	a := account.New()

	_, ok := a.Apply(ts, domain.Buy, 10.00, 40, domain.FillQuote)
	require.True(t, ok)
	fill, ok := a.Apply(ts, domain.Sell, 10.25, 40, domain.FillQuote)
	require.True(t, ok)

	// Realized PnL is exactly (P2 - P) x Q.
	assert.InDelta(t, (10.25-10.00)*40, fill.RealizedPnL, 1e-9)
	assert.Equal(t, 0.0, a.Position())
	assert.InDelta(t, 10.0, a.RealizedPnL(), 1e-9)
}

func TestWeightedAverageEntry(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Buy, 10.00, 100, domain.FillQuote)
	a.Apply(ts, domain.Buy, 11.00, 50, domain.FillQuote)

	assert.Equal(t, 150.0, a.Position())
	assert.InDelta(t, (10.00*100+11.00*50)/150, a.EntryPrice(), 1e-9)
	assert.Equal(t, 0.0, a.RealizedPnL())
}

func TestPartialCloseThenFlip(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Buy, 10.00, 100, domain.FillQuote)

	// Sell 150: closes the 100 long, opens a 50 short at 10.50.
	fill, ok := a.Apply(ts, domain.Sell, 10.50, 150, domain.FillQuote)
	require.True(t, ok)

	assert.InDelta(t, (10.50-10.00)*100, fill.RealizedPnL, 1e-9)
	assert.Equal(t, -50.0, a.Position())
	assert.Equal(t, 10.50, a.EntryPrice())
}

func TestShortSidePnL(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Sell, 10.00, 60, domain.FillQuote)
	fill, ok := a.Apply(ts, domain.Buy, 9.50, 60, domain.FillQuote)
	require.True(t, ok)

	assert.InDelta(t, (10.00-9.50)*60, fill.RealizedPnL, 1e-9)
	assert.Equal(t, 0.0, a.Position())
}

func TestFlatten(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Buy, 10.00, 80, domain.FillQuote)
	fill, ok := a.Flatten(ts, 9.80, domain.FillEODFlatten)
	require.True(t, ok)

	assert.Equal(t, domain.Sell, fill.Side)
	assert.Equal(t, 80.0, fill.Quantity)
	assert.Equal(t, domain.FillEODFlatten, fill.Kind)
	assert.Equal(t, 0.0, a.Position())

	// Flattening a flat account is a no-op.
	_, ok = a.Flatten(ts, 9.80, domain.FillEODFlatten)
	assert.False(t, ok)
}

func TestSignedFillSumEqualsPosition(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Buy, 10.00, 100, domain.FillQuote)
	a.Apply(ts, domain.Sell, 10.10, 30, domain.FillQuote)
	a.Apply(ts, domain.Buy, 10.05, 20, domain.FillQuote)
	a.Apply(ts, domain.Sell, 10.20, 150, domain.FillQuote)

	var sum float64
	for _, f := range a.Fills() {
		sum += f.SignedQuantity()
	}
	assert.InDelta(t, a.Position(), sum, 1e-9)
}

func TestCostBasisSurvivesPartialReduction(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Buy, 10.00, 100, domain.FillQuote)
	a.Apply(ts, domain.Sell, 10.50, 40, domain.FillQuote)

	// The per-share basis of the remaining 60 is still 10.00, so a mark at
	// 9.80 is a 2% loss.
	assert.InDelta(t, -2.0, a.UnrealizedPnLPct(9.80), 1e-9)
}

func TestUnrealizedPnL(t *testing.T) {
	a := account.New()

	assert.Equal(t, 0.0, a.UnrealizedPnL(10.00))
	assert.Equal(t, 0.0, a.UnrealizedPnLPct(10.00))

	a.Apply(ts, domain.Buy, 10.00, 50, domain.FillQuote)

	assert.InDelta(t, (9.90-10.00)*50, a.UnrealizedPnL(9.90), 1e-9)
	assert.InDelta(t, -1.0, a.UnrealizedPnLPct(9.90), 1e-9)
}

func TestTotalPnL(t *testing.T) {
	a := account.New()

	a.Apply(ts, domain.Buy, 10.00, 50, domain.FillQuote)
	a.Apply(ts, domain.Sell, 10.20, 20, domain.FillQuote)

	realized := (10.20 - 10.00) * 20
	unrealized := (10.30 - 10.00) * 30
	assert.InDelta(t, realized+unrealized, a.TotalPnL(10.30, true), 1e-9)

	// Unknown mark price skips the unrealized leg.
	assert.InDelta(t, realized, a.TotalPnL(0, false), 1e-9)
}

func TestFillHook(t *testing.T) {
	a := account.New()

	var seen []domain.Fill
	a.SetFillHook(func(f domain.Fill) { seen = append(seen, f) })

	a.Apply(ts, domain.Buy, 10.00, 50, domain.FillQuote)
	a.Flatten(ts, 10.10, domain.FillEODFlatten)

	require.Len(t, seen, 2)
	assert.Equal(t, domain.FillQuote, seen[0].Kind)
	assert.Equal(t, domain.FillEODFlatten, seen[1].Kind)
}

func TestInvalidQuantityIgnored(t *testing.T) {
	a := account.New()

	_, ok := a.Apply(ts, domain.Buy, 10.00, 0, domain.FillQuote)
	assert.False(t, ok)
	_, ok = a.Apply(ts, domain.Buy, 10.00, -5, domain.FillQuote)
	assert.False(t, ok)
	assert.Empty(t, a.Fills())
}
