package strategy

import "time"

// PriceFollow is the aggressive policy: quote prices are refreshed on every
// event, so quotes never go stale, at the cost of losing queue position on
// every price move. After a fill the side enters a cooldown during which only
// the previously unfilled remainder may be offered; no top-up to full size
// until the cooldown elapses.
type PriceFollow struct{}

// NewPriceFollow returns the price-follow policy.
func NewPriceFollow() PriceFollow { return PriceFollow{} }

func (PriceFollow) Name() string { return "price_follow" }

func (PriceFollow) RepriceEveryEvent() bool { return true }

// Eligible is always true: prices track the market continuously and size
// throttling happens in OfferSize instead.
func (PriceFollow) Eligible(_ *SideState, _ time.Time, _ time.Duration) bool { return true }

func (PriceFollow) OfferSize(st *SideState, now time.Time, interval time.Duration, baseSize, headroom float64) float64 {
	if inCooldown(st, now, interval) {
		return capSize(st.OurRemaining, headroom)
	}
	return capSize(baseSize, headroom)
}

func inCooldown(st *SideState, now time.Time, interval time.Duration) bool {
	if st.LastFill.IsZero() {
		return false
	}
	return now.Sub(st.LastFill) < interval
}
