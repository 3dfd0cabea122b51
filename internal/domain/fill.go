package domain

import "time"

// TradeSide is the direction of one of our fills.
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)

// QuoteSide maps a fill direction to the book side whose refill timer it
// resets: a buy fill belongs to our bid, a sell fill to our ask.
func (s TradeSide) QuoteSide() Side {
	if s == Buy {
		return SideBid
	}
	return SideAsk
}

// FillKind classifies how a fill was produced.
type FillKind string

const (
	FillQuote        FillKind = "quote_fill"
	FillStopLoss     FillKind = "stop_loss"
	FillEODFlatten   FillKind = "eod_flatten"
	FillAuctionEntry FillKind = "auction_entry"
	FillVWAPExit     FillKind = "vwap_exit"
)

// Fill is one executed trade of ours. Records are append-only and ordered by
// execution. Position and CumulativePnL are the values immediately after the
// fill was applied.
type Fill struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Side          TradeSide `json:"side"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	RealizedPnL   float64   `json:"realized_pnl"`
	Position      float64   `json:"position"`
	CumulativePnL float64   `json:"cumulative_pnl"`
	Kind          FillKind  `json:"kind"`
}

// SignedQuantity returns the fill quantity with buy positive, sell negative.
func (f Fill) SignedQuantity() float64 {
	if f.Side == Buy {
		return f.Quantity
	}
	return -f.Quantity
}
