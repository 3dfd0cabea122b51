// Package account maintains signed position, weighted-average entry price,
// and realized profit and loss from a stream of fills. One Account belongs to
// exactly one security and one processing loop.
package account

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// Account accumulates position and PnL. A fill first closes any opposite
// position (realizing PnL), then opens or extends a same-direction position
// at a weighted-average entry price. Opening or extending never changes
// realized PnL by itself.
//
// Alongside the blended entry price the account keeps a quantity-weighted
// cost basis that survives partial reductions, used for the stop-loss
// unrealized-loss percentage.
type Account struct {
	position    float64
	entryPrice  float64
	realizedPnL float64
	fills       []domain.Fill

	costBasis float64 // abs cost of the open position
	qtyFilled float64 // abs quantity backing costBasis

	fillHook func(domain.Fill)
}

// New returns a flat account.
func New() *Account {
	return &Account{}
}

// Position returns the signed position, positive for long.
func (a *Account) Position() float64 { return a.position }

// EntryPrice returns the blended average entry price. Meaningless when the
// position is zero.
func (a *Account) EntryPrice() float64 { return a.entryPrice }

// RealizedPnL returns cumulative realized profit and loss.
func (a *Account) RealizedPnL() float64 { return a.realizedPnL }

// Fills returns the append-only fill log in execution order.
func (a *Account) Fills() []domain.Fill { return a.fills }

// SetFillHook registers a callback invoked synchronously after every
// recorded fill. Stream mode uses it to publish fills as they happen.
func (a *Account) SetFillHook(hook func(domain.Fill)) { a.fillHook = hook }

// Apply records one fill and returns the resulting record. Zero or negative
// quantities are ignored and return ok=false.
func (a *Account) Apply(ts time.Time, side domain.TradeSide, price, qty float64, kind domain.FillKind) (domain.Fill, bool) {
	if qty <= 0 {
		return domain.Fill{}, false
	}

	oldPosition := a.position
	remaining := qty
	realized := 0.0

	switch side {
	case domain.Buy:
		if a.position < 0 {
			closeQty := math.Min(remaining, -a.position)
			realized = (a.entryPrice - price) * closeQty
			a.realizedPnL += realized
			a.position += closeQty
			remaining -= closeQty
		}
		if remaining > 0 {
			if a.position == 0 {
				a.entryPrice = price
				a.position = remaining
			} else {
				totalCost := a.entryPrice*a.position + price*remaining
				a.position += remaining
				a.entryPrice = totalCost / a.position
			}
		}
	case domain.Sell:
		if a.position > 0 {
			closeQty := math.Min(remaining, a.position)
			realized = (price - a.entryPrice) * closeQty
			a.realizedPnL += realized
			a.position -= closeQty
			remaining -= closeQty
		}
		if remaining > 0 {
			if a.position == 0 {
				a.entryPrice = price
				a.position = -remaining
			} else {
				totalCost := a.entryPrice*math.Abs(a.position) + price*remaining
				a.position -= remaining
				a.entryPrice = totalCost / math.Abs(a.position)
			}
		}
	default:
		return domain.Fill{}, false
	}

	a.updateCostBasis(oldPosition, price)

	fill := domain.Fill{
		ID:            uuid.NewString(),
		Timestamp:     ts,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		RealizedPnL:   realized,
		Position:      a.position,
		CumulativePnL: a.realizedPnL,
		Kind:          kind,
	}
	a.fills = append(a.fills, fill)
	if a.fillHook != nil {
		a.fillHook(fill)
	}
	return fill, true
}

// updateCostBasis keeps the stop-loss cost basis in sync with the position
// transition that Apply just performed.
func (a *Account) updateCostBasis(oldPosition, price float64) {
	newPosition := a.position
	oldAbs, newAbs := math.Abs(oldPosition), math.Abs(newPosition)
	sameSign := oldPosition*newPosition > 0

	switch {
	case newPosition == 0:
		a.costBasis = 0
		a.qtyFilled = 0
	case oldPosition == 0 || !sameSign:
		// Opened fresh or flipped through zero.
		a.costBasis = price * newAbs
		a.qtyFilled = newAbs
	case newAbs > oldAbs:
		a.costBasis += price * (newAbs - oldAbs)
		a.qtyFilled = newAbs
	default:
		// Reduced same-direction position: scale basis proportionally so the
		// per-share basis is unchanged.
		a.costBasis *= newAbs / oldAbs
		a.qtyFilled = newAbs
	}
}

// Flatten force-closes the whole position with a synthetic opposite fill at
// price. Returns ok=false when already flat.
func (a *Account) Flatten(ts time.Time, price float64, kind domain.FillKind) (domain.Fill, bool) {
	if a.position == 0 {
		return domain.Fill{}, false
	}
	side := domain.Sell
	if a.position < 0 {
		side = domain.Buy
	}
	return a.Apply(ts, side, price, math.Abs(a.position), kind)
}

// UnrealizedPnL marks the open position at price using the cost-basis average
// entry. Zero when flat.
func (a *Account) UnrealizedPnL(price float64) float64 {
	if a.position == 0 || a.qtyFilled == 0 {
		return 0
	}
	avg := a.costBasis / a.qtyFilled
	return (price - avg) * a.position
}

// UnrealizedPnLPct returns unrealized PnL as a percentage of the absolute
// cost basis; negative values are losses. Zero when flat or the basis is
// degenerate.
func (a *Account) UnrealizedPnLPct(price float64) float64 {
	if a.position == 0 || a.costBasis < 1e-9 {
		return 0
	}
	return a.UnrealizedPnL(price) / a.costBasis * 100
}

// TotalPnL returns realized plus unrealized PnL at the given mark price,
// using the blended entry price. markKnown=false skips the unrealized leg.
func (a *Account) TotalPnL(markPrice float64, markKnown bool) float64 {
	total := a.realizedPnL
	if markKnown && a.position != 0 {
		total += (markPrice - a.entryPrice) * a.position
	}
	return total
}
