// Package session classifies event timestamps into trading-session phases and
// detects day boundaries. Classification is a pure function of the timestamp
// and a fixed schedule; the engine uses it to gate book updates, quoting,
// fill processing, and the end-of-day flatten.
package session

import "time"

// Phase is the session phase a timestamp falls into.
type Phase int

const (
	PhasePreOpen Phase = iota
	PhaseOpeningAuction
	PhaseSilent
	PhaseContinuous
	PhaseClosingAuction
	PhasePostClose
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhasePreOpen:
		return "pre_open"
	case PhaseOpeningAuction:
		return "opening_auction"
	case PhaseSilent:
		return "silent"
	case PhaseContinuous:
		return "continuous"
	case PhaseClosingAuction:
		return "closing_auction"
	case PhasePostClose:
		return "post_close"
	default:
		return "unknown"
	}
}

// TimeOfDay is a wall-clock instant within a trading day, minutes since
// midnight plus seconds.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Schedule holds the phase boundaries of one trading day. All comparisons are
// half-open [start, end) except the closing auction end, which is inclusive.
type Schedule struct {
	OpeningAuctionStart TimeOfDay // book building + quoting allowed, no fills
	ContinuousStart     TimeOfDay // opening auction ends, silent period begins
	SilentEnd           TimeOfDay // silent period ends, continuous trading begins
	ClosingAuctionStart TimeOfDay // all book updates and quoting suppressed
	EODCutoff           TimeOfDay // at/after this, force-flatten open positions
	CloseTime           TimeOfDay // closing auction ends
}

// Default is the exchange schedule the engine was built against:
// opening auction 09:30-10:00, silent 10:00-10:05, continuous 10:05-14:45,
// closing auction 14:45-15:00, EOD flatten cutoff 14:55.
func Default() Schedule {
	return Schedule{
		OpeningAuctionStart: TimeOfDay{Hour: 9, Minute: 30},
		ContinuousStart:     TimeOfDay{Hour: 10},
		SilentEnd:           TimeOfDay{Hour: 10, Minute: 5},
		ClosingAuctionStart: TimeOfDay{Hour: 14, Minute: 45},
		EODCutoff:           TimeOfDay{Hour: 14, Minute: 55},
		CloseTime:           TimeOfDay{Hour: 15},
	}
}

func secondsOfDay(ts time.Time) int {
	return ts.Hour()*3600 + ts.Minute()*60 + ts.Second()
}

// Classify returns the phase the timestamp falls into.
func (s Schedule) Classify(ts time.Time) Phase {
	sec := secondsOfDay(ts)
	switch {
	case sec < s.OpeningAuctionStart.seconds():
		return PhasePreOpen
	case sec < s.ContinuousStart.seconds():
		return PhaseOpeningAuction
	case sec < s.SilentEnd.seconds():
		return PhaseSilent
	case sec < s.ClosingAuctionStart.seconds():
		return PhaseContinuous
	case sec <= s.CloseTime.seconds():
		return PhaseClosingAuction
	default:
		return PhasePostClose
	}
}

// AtOrAfterEODCutoff reports whether the timestamp has reached the forced
// flatten cutoff.
func (s Schedule) AtOrAfterEODCutoff(ts time.Time) bool {
	return secondsOfDay(ts) >= s.EODCutoff.seconds()
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOf truncates a timestamp to its calendar date in its own location.
func DateOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
