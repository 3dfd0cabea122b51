package domain

import "time"

// EventKind identifies the type of a market event.
type EventKind string

const (
	EventBid   EventKind = "bid"
	EventAsk   EventKind = "ask"
	EventTrade EventKind = "trade"
)

// Side identifies an order book side.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Opposite returns the other book side.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// MarketEvent is one tick from the ingestion layer: a top-of-book quote
// update or a trade print. Events for a security arrive strictly in
// timestamp order.
type MarketEvent struct {
	Timestamp time.Time
	Kind      EventKind
	Price     float64
	Volume    float64
}

// Valid reports whether the event can touch the book: a recognized kind and
// a positive price. Invalid events are silently discarded upstream.
func (e MarketEvent) Valid() bool {
	if e.Price <= 0 {
		return false
	}
	switch e.Kind {
	case EventBid, EventAsk, EventTrade:
		return true
	default:
		return false
	}
}

// PriceLevel is a single price+quantity entry on one side of the book.
type PriceLevel struct {
	Price    float64
	Quantity float64
}
