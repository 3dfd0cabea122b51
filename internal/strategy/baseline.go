package strategy

import "time"

// Baseline is the sticky-quote policy: a side re-quotes only when no timer
// has been set yet or the refill interval has elapsed since the last
// placement or fill on that side. Between refills the quote keeps its price
// and queue position, accumulating priority.
type Baseline struct{}

// NewBaseline returns the baseline refill policy.
func NewBaseline() Baseline { return Baseline{} }

func (Baseline) Name() string { return "baseline" }

func (Baseline) RepriceEveryEvent() bool { return false }

func (Baseline) Eligible(st *SideState, now time.Time, interval time.Duration) bool {
	if st.LastPlace.IsZero() {
		return true
	}
	return now.Sub(st.LastPlace) >= interval
}

// OfferSize always offers the full configured size, capped by headroom; the
// baseline has no quantity cooldown.
func (Baseline) OfferSize(_ *SideState, _ time.Time, _ time.Duration, baseSize, headroom float64) float64 {
	return capSize(baseSize, headroom)
}
