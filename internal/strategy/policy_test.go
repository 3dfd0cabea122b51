package strategy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/strategy"
)

var (
	t0       = time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)
	interval = 60 * time.Second
)

func TestBaselineEligibility(t *testing.T) {
	p := strategy.NewBaseline()
	st := &strategy.SideState{}

	// No timer yet: eligible immediately.
	assert.True(t, p.Eligible(st, t0, interval))

	st.MarkPlaced(t0)
	assert.False(t, p.Eligible(st, t0.Add(59*time.Second), interval))
	assert.True(t, p.Eligible(st, t0.Add(60*time.Second), interval))

	// A fill restarts the timer too.
	st.MarkFilled(t0.Add(60 * time.Second))
	assert.False(t, p.Eligible(st, t0.Add(90*time.Second), interval))
}

func TestBaselineOfferSizeCappedByHeadroom(t *testing.T) {
	p := strategy.NewBaseline()
	st := &strategy.SideState{}

	assert.Equal(t, 50.0, p.OfferSize(st, t0, interval, 50, 100))
	assert.Equal(t, 30.0, p.OfferSize(st, t0, interval, 50, 30))
	assert.Equal(t, 0.0, p.OfferSize(st, t0, interval, 50, -10))
}

func TestPriceFollowCooldown(t *testing.T) {
	p := strategy.NewPriceFollow()
	st := &strategy.SideState{OurRemaining: 30}

	// Always eligible; throttling happens through size.
	assert.True(t, p.RepriceEveryEvent())
	assert.True(t, p.Eligible(st, t0, interval))

	// No fill yet: full size.
	assert.Equal(t, 50.0, p.OfferSize(st, t0, interval, 50, 100))

	// During the cooldown only the unfilled remainder may be offered.
	st.MarkFilled(t0)
	assert.Equal(t, 30.0, p.OfferSize(st, t0.Add(30*time.Second), interval, 50, 100))

	// After the cooldown full size is restored.
	assert.Equal(t, 50.0, p.OfferSize(st, t0.Add(61*time.Second), interval, 50, 100))
}

func TestStopLossTriggerAndConsume(t *testing.T) {
	sl := strategy.NewStopLoss(2.0)

	// Loss within the threshold does not trigger.
	assert.False(t, sl.ShouldTrigger(100, -1.5))
	// Flat position never triggers.
	assert.False(t, sl.ShouldTrigger(0, -5.0))
	assert.True(t, sl.ShouldTrigger(100, -2.5))

	sl.Trigger(100, t0)
	require.NotNil(t, sl.Pending())
	assert.Equal(t, domain.Sell, sl.Pending().Side)
	assert.Equal(t, 100.0, sl.Pending().Remaining)
	assert.Equal(t, 1, sl.Triggers())

	// A pending liquidation blocks re-triggering.
	assert.False(t, sl.ShouldTrigger(100, -5.0))

	assert.Equal(t, 40.0, sl.Consume(60))
	assert.Equal(t, 0.0, sl.Consume(40))
	assert.Nil(t, sl.Pending())
}

func TestStopLossShortSide(t *testing.T) {
	sl := strategy.NewStopLoss(2.0)

	sl.Trigger(-80, t0)
	require.NotNil(t, sl.Pending())
	assert.Equal(t, domain.Buy, sl.Pending().Side)
	assert.Equal(t, 80.0, sl.Pending().Remaining)
}

func TestRegistry(t *testing.T) {
	r := strategy.NewRegistry()

	assert.Equal(t, []string{"baseline", "closing_auction", "price_follow", "stop_loss"}, r.List())

	v, err := r.Get("stop_loss")
	require.NoError(t, err)
	assert.True(t, v.UseStopLoss)
	assert.False(t, v.ClosingAuction)
	require.NotNil(t, v.Policy)
	assert.Equal(t, "price_follow", v.Policy.Name())

	v, err = r.Get("closing_auction")
	require.NoError(t, err)
	assert.True(t, v.ClosingAuction)
	assert.Nil(t, v.Policy)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}
