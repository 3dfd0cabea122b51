// Package book reconstructs a per-security aggregated limit order book from
// top-of-book quote events. Levels map price to displayed resting quantity;
// the book never contains our own simulated orders.
package book

import (
	"time"

	"github.com/google/btree"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// bidLevel orders descending so the tree minimum is the best bid.
type bidLevel struct {
	price    float64
	quantity float64
}

func (l *bidLevel) Less(than btree.Item) bool {
	return l.price > than.(*bidLevel).price
}

// askLevel orders ascending so the tree minimum is the best ask.
type askLevel struct {
	price    float64
	quantity float64
}

func (l *askLevel) Less(than btree.Item) bool {
	return l.price < than.(*askLevel).price
}

// LastTrade is the most recent trade print applied to the book.
type LastTrade struct {
	Timestamp time.Time
	Price     float64
	Volume    float64
}

// Book is an aggregated price->quantity order book for one security.
// It is not safe for concurrent use; each security is owned by a single
// processing loop.
type Book struct {
	bids *btree.BTree
	asks *btree.BTree
	last *LastTrade
}

// New returns an empty book.
func New() *Book {
	return &Book{
		bids: btree.New(32),
		asks: btree.New(32),
	}
}

// Apply applies one market event. Bid/ask events overwrite the quantity at
// their price; quantity <= 0 deletes the level. Trade events only record the
// last trade. Events with a non-positive price or an unrecognized kind are
// dropped silently.
func (b *Book) Apply(ev domain.MarketEvent) {
	if !ev.Valid() {
		return
	}
	switch ev.Kind {
	case domain.EventBid:
		if ev.Volume <= 0 {
			b.bids.Delete(&bidLevel{price: ev.Price})
			return
		}
		b.bids.ReplaceOrInsert(&bidLevel{price: ev.Price, quantity: ev.Volume})
	case domain.EventAsk:
		if ev.Volume <= 0 {
			b.asks.Delete(&askLevel{price: ev.Price})
			return
		}
		b.asks.ReplaceOrInsert(&askLevel{price: ev.Price, quantity: ev.Volume})
	case domain.EventTrade:
		b.last = &LastTrade{Timestamp: ev.Timestamp, Price: ev.Price, Volume: ev.Volume}
	}
}

// BestBid returns the highest bid level, or ok=false when the side is empty.
func (b *Book) BestBid() (domain.PriceLevel, bool) {
	item := b.bids.Min()
	if item == nil {
		return domain.PriceLevel{}, false
	}
	l := item.(*bidLevel)
	return domain.PriceLevel{Price: l.price, Quantity: l.quantity}, true
}

// BestAsk returns the lowest ask level, or ok=false when the side is empty.
func (b *Book) BestAsk() (domain.PriceLevel, bool) {
	item := b.asks.Min()
	if item == nil {
		return domain.PriceLevel{}, false
	}
	l := item.(*askLevel)
	return domain.PriceLevel{Price: l.price, Quantity: l.quantity}, true
}

// DepthAt returns the displayed quantity resting at price on the given side,
// zero when the level does not exist. The displayed quantity excludes our own
// simulated order; a joining order is assumed to queue behind all of it.
func (b *Book) DepthAt(side domain.Side, price float64) float64 {
	var item btree.Item
	if side == domain.SideBid {
		item = b.bids.Get(&bidLevel{price: price})
	} else {
		item = b.asks.Get(&askLevel{price: price})
	}
	if item == nil {
		return 0
	}
	if side == domain.SideBid {
		return item.(*bidLevel).quantity
	}
	return item.(*askLevel).quantity
}

// Remove decrements the level at price by quantity, deleting it when the
// remainder is zero or less. Used only by the fill simulator to reflect
// liquidity consumed by fills, ours and simulated ahead fills alike.
func (b *Book) Remove(side domain.Side, price, quantity float64) {
	if side == domain.SideBid {
		item := b.bids.Get(&bidLevel{price: price})
		if item == nil {
			return
		}
		l := item.(*bidLevel)
		if l.quantity <= quantity {
			b.bids.Delete(l)
			return
		}
		l.quantity -= quantity
		return
	}
	item := b.asks.Get(&askLevel{price: price})
	if item == nil {
		return
	}
	l := item.(*askLevel)
	if l.quantity <= quantity {
		b.asks.Delete(l)
		return
	}
	l.quantity -= quantity
}

// LastTrade returns the most recent trade print, or nil when none was seen.
func (b *Book) LastTrade() *LastTrade {
	return b.last
}

// Clear empties both sides and the last trade. Called at the start of a new
// trading day; positions are carried elsewhere and are not touched here.
func (b *Book) Clear() {
	b.bids.Clear(false)
	b.asks.Clear(false)
	b.last = nil
}

// Levels returns the number of resting levels on the given side.
func (b *Book) Levels(side domain.Side) int {
	if side == domain.SideBid {
		return b.bids.Len()
	}
	return b.asks.Len()
}
