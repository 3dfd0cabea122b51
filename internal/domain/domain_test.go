package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, domain.SideAsk, domain.SideBid.Opposite())
	assert.Equal(t, domain.SideBid, domain.SideAsk.Opposite())
}

func TestTradeSideQuoteSide(t *testing.T) {
	assert.Equal(t, domain.SideBid, domain.Buy.QuoteSide())
	assert.Equal(t, domain.SideAsk, domain.Sell.QuoteSide())
}

func TestEventValid(t *testing.T) {
	ts := time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)

	assert.True(t, domain.MarketEvent{Timestamp: ts, Kind: domain.EventBid, Price: 10, Volume: 100}.Valid())
	assert.True(t, domain.MarketEvent{Timestamp: ts, Kind: domain.EventTrade, Price: 10, Volume: 0}.Valid())
	assert.False(t, domain.MarketEvent{Timestamp: ts, Kind: domain.EventBid, Price: 0, Volume: 100}.Valid())
	assert.False(t, domain.MarketEvent{Timestamp: ts, Kind: domain.EventBid, Price: -1, Volume: 100}.Valid())
	assert.False(t, domain.MarketEvent{Timestamp: ts, Kind: "quote", Price: 10, Volume: 100}.Valid())
}

func TestSignedQuantity(t *testing.T) {
	assert.Equal(t, 25.0, domain.Fill{Side: domain.Buy, Quantity: 25}.SignedQuantity())
	assert.Equal(t, -25.0, domain.Fill{Side: domain.Sell, Quantity: 25}.SignedQuantity())
}

func TestEventCountsAdd(t *testing.T) {
	var c domain.EventCounts
	c.Add(domain.EventBid)
	c.Add(domain.EventAsk)
	c.Add(domain.EventTrade)
	c.Add(domain.EventTrade)

	assert.Equal(t, int64(4), c.Rows)
	assert.Equal(t, int64(1), c.Bids)
	assert.Equal(t, int64(1), c.Asks)
	assert.Equal(t, int64(2), c.Trades)
}
