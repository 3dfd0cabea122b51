package strategy

import (
	"time"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// Liquidation is a pending stop-loss order: liquidate the full position on
// the opposite side, executed against whatever opposite-side depth becomes
// available, possibly across several events.
type Liquidation struct {
	Side        domain.TradeSide
	Remaining   float64
	TriggeredAt time.Time
}

// StopLoss monitors unrealized loss and drives the liquidation sub-state
// machine. While a liquidation is pending, normal quoting for the security
// is bypassed.
type StopLoss struct {
	thresholdPct float64
	pending      *Liquidation
	triggers     int
}

// NewStopLoss returns a monitor that triggers when the unrealized loss
// percentage exceeds thresholdPct.
func NewStopLoss(thresholdPct float64) *StopLoss {
	return &StopLoss{thresholdPct: thresholdPct}
}

// Pending returns the active liquidation, nil when none.
func (sl *StopLoss) Pending() *Liquidation { return sl.pending }

// Triggers returns how many times the stop loss has fired.
func (sl *StopLoss) Triggers() int { return sl.triggers }

// ShouldTrigger reports whether a new liquidation must start: a nonzero
// position, nothing already pending, and unrealized loss beyond the
// threshold. pnlPct is negative for losses.
func (sl *StopLoss) ShouldTrigger(position, pnlPct float64) bool {
	if position == 0 || sl.pending != nil {
		return false
	}
	return pnlPct < -sl.thresholdPct
}

// Trigger marks the full position for liquidation on the opposite side.
func (sl *StopLoss) Trigger(position float64, now time.Time) {
	if position == 0 {
		return
	}
	side := domain.Sell
	qty := position
	if position < 0 {
		side = domain.Buy
		qty = -position
	}
	sl.pending = &Liquidation{Side: side, Remaining: qty, TriggeredAt: now}
	sl.triggers++
}

// Consume reduces the pending quantity by an executed amount and clears the
// liquidation when it is done. Returns the quantity still pending.
func (sl *StopLoss) Consume(filled float64) float64 {
	if sl.pending == nil {
		return 0
	}
	sl.pending.Remaining -= filled
	if sl.pending.Remaining <= 0 {
		sl.pending = nil
		return 0
	}
	return sl.pending.Remaining
}

// Reset drops any pending liquidation. Used when the position is flattened
// by other means.
func (sl *StopLoss) Reset() { sl.pending = nil }
