package domain

import "time"

// EventCounts tallies processed events by kind.
type EventCounts struct {
	Rows   int64
	Bids   int64
	Asks   int64
	Trades int64
}

// Add bumps the tally for one event kind.
func (c *EventCounts) Add(kind EventKind) {
	c.Rows++
	switch kind {
	case EventBid:
		c.Bids++
	case EventAsk:
		c.Asks++
	case EventTrade:
		c.Trades++
	}
}

// Result is the per-security outcome of one engine run.
type Result struct {
	Security          string
	Strategy          string
	Position          float64
	RealizedPnL       float64
	TotalPnL          float64 // realized + unrealized at last trade price
	Fills             []Fill
	Counts            EventCounts
	MarketDates       []time.Time // calendar dates with at least one trade print
	FillDates         []time.Time // calendar dates with at least one fill of ours
	StopLossTriggers  int
	UnresolvedFlatten bool
}
