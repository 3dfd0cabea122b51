// Package strategy defines the composable quoting policies that the engine
// plugs into a session: when a side may be (re)quoted, how its price tracks
// the market, and how fills throttle size through a cooldown. Variants are
// small pure policies over session state rather than a strategy hierarchy.
package strategy

import (
	"time"
)

// SideState is the mutable quote state for one book side of one security,
// owned exclusively by the session processing loop.
type SideState struct {
	// QuotePrice is the candidate price of our resting order. It stays
	// populated even while the displayed quote is suppressed so the ahead
	// quantity can keep being tracked.
	QuotePrice float64
	// QuoteLive reports whether a displayed quote is active at QuotePrice.
	QuoteLive bool
	// AheadQty is the simulated resting quantity queued in front of our
	// order at QuotePrice. Our order is assumed to join behind the whole
	// displayed level, which never includes our own size.
	AheadQty float64
	// OurRemaining is our unfilled quoted quantity.
	OurRemaining float64
	// LastPlace is when a quote was last (re)placed on this side.
	LastPlace time.Time
	// LastFill is when one of our orders last filled on this side.
	LastFill time.Time
}

// Reset clears the side to its idle state. Used at day boundaries.
func (s *SideState) Reset() {
	*s = SideState{}
}

// MarkPlaced restarts the placement timer.
func (s *SideState) MarkPlaced(now time.Time) { s.LastPlace = now }

// MarkFilled restarts both timers; a fill counts as activity for the
// baseline refill timer and starts the price-follow cooldown.
func (s *SideState) MarkFilled(now time.Time) {
	s.LastPlace = now
	s.LastFill = now
}

// Policy decides per-side quoting behavior. Implementations are stateless;
// all mutable state lives in SideState.
type Policy interface {
	Name() string

	// RepriceEveryEvent reports whether quote prices follow the market on
	// every event instead of only when the refill timer allows.
	RepriceEveryEvent() bool

	// Eligible reports whether the side may be (re)quoted at now.
	Eligible(st *SideState, now time.Time, interval time.Duration) bool

	// OfferSize returns the quantity to offer on the side, given the full
	// configured size for that side and the position headroom cap. Returns 0
	// when nothing should be offered.
	OfferSize(st *SideState, now time.Time, interval time.Duration, baseSize, headroom float64) float64
}

func capSize(size, headroom float64) float64 {
	if size > headroom {
		size = headroom
	}
	if size < 0 {
		return 0
	}
	return size
}
