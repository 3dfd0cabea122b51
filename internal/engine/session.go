// Package engine runs the per-security market-making session: it rebuilds
// the order book from events, decides quotes through the configured policy,
// simulates queue-position fills against trade prints, and accounts position
// and PnL across the trading day including the end-of-day flatten.
package engine

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/mmsim/internal/account"
	"github.com/alanyoungcy/mmsim/internal/book"
	"github.com/alanyoungcy/mmsim/internal/config"
	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/session"
	"github.com/alanyoungcy/mmsim/internal/strategy"
)

// Session owns all mutable state for one security. It is a synchronous
// state-transition function applied event by event; events must arrive in
// timestamp order. Not safe for concurrent use.
type Session struct {
	security string
	cfg      config.SecurityConfig
	sched    session.Schedule
	policy   strategy.Policy
	stopLoss *strategy.StopLoss
	logger   *slog.Logger

	book *book.Book
	acct *account.Account
	bid  strategy.SideState
	ask  strategy.SideState

	counts         domain.EventCounts
	marketDates    map[time.Time]struct{}
	lastDate       time.Time
	lastTradePrice float64
	lastTradeSeen  bool
	closedAtEOD    bool
	pendingFlatten bool
}

// Option configures a Session.
type Option func(*Session)

// WithSchedule overrides the default session schedule.
func WithSchedule(s session.Schedule) Option {
	return func(se *Session) { se.sched = s }
}

// WithStopLoss attaches the stop-loss liquidation extension.
func WithStopLoss(sl *strategy.StopLoss) Option {
	return func(se *Session) { se.stopLoss = sl }
}

// NewSession creates a session for one security with the given policy and
// resolved configuration.
func NewSession(security string, cfg config.SecurityConfig, policy strategy.Policy, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		security:    security,
		cfg:         cfg,
		sched:       session.Default(),
		policy:      policy,
		logger:      logger.With(slog.String("component", "engine"), slog.String("security", security)),
		book:        book.New(),
		acct:        account.New(),
		marketDates: make(map[time.Time]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book exposes the reconstructed order book, mainly for tests.
func (s *Session) Book() *book.Book { return s.book }

// Account exposes the accountant, mainly for tests.
func (s *Session) Account() *account.Account { return s.acct }

// ProcessEvent advances the session by one market event.
func (s *Session) ProcessEvent(ev domain.MarketEvent) {
	ts := ev.Timestamp
	date := session.DateOf(ts)

	// New trading day: the book, quote state, timers, and pending flags
	// reset; the position carries over.
	if !s.lastDate.IsZero() && !s.lastDate.Equal(date) {
		s.newDay()
	}
	s.lastDate = date

	if ev.Kind == domain.EventTrade {
		s.marketDates[date] = struct{}{}
	}

	// Forced end-of-day flatten. A non-trade trigger defers the flatten
	// until the first subsequent trade supplies a price.
	if s.sched.AtOrAfterEODCutoff(ts) && !s.closedAtEOD {
		s.closedAtEOD = true
		if s.acct.Position() != 0 {
			if ev.Kind == domain.EventTrade {
				s.flatten(ts, ev.Price)
			} else {
				s.pendingFlatten = true
			}
			return
		}
	}

	// A pending flatten consumes every event until a trade resolves it.
	if s.pendingFlatten {
		if ev.Kind == domain.EventTrade {
			s.flatten(ts, ev.Price)
			s.pendingFlatten = false
		}
		return
	}

	phase := s.sched.Classify(ts)
	switch phase {
	case session.PhaseSilent, session.PhaseClosingAuction, session.PhasePostClose:
		// No book updates, quoting, or fills.
		return
	}
	// Pre-open and the opening auction allow book building and quoting but
	// suppress fill processing; auction prints are not continuous fills.
	inAuction := phase == session.PhasePreOpen || phase == session.PhaseOpeningAuction

	if !ev.Valid() {
		return
	}
	s.book.Apply(ev)
	s.counts.Add(ev.Kind)
	if ev.Kind == domain.EventTrade {
		s.lastTradePrice = ev.Price
		s.lastTradeSeen = true
	}

	if s.stopLoss != nil && !s.runStopLoss(ts) {
		// Liquidation still pending; normal quoting is bypassed.
		return
	}

	s.quote(ts)

	if ev.Kind == domain.EventTrade && !inAuction {
		s.processTrade(ts, ev.Price, ev.Volume)
	}
}

func (s *Session) newDay() {
	s.book.Clear()
	s.bid.Reset()
	s.ask.Reset()
	s.closedAtEOD = false
	s.pendingFlatten = false
	if s.stopLoss != nil {
		s.stopLoss.Reset()
	}
}

func (s *Session) flatten(ts time.Time, price float64) {
	if fill, ok := s.acct.Flatten(ts, price, domain.FillEODFlatten); ok {
		s.afterFill(fill, ts)
		s.logger.Debug("eod flatten",
			slog.Float64("price", price),
			slog.Float64("quantity", fill.Quantity),
		)
	}
	if s.stopLoss != nil {
		s.stopLoss.Reset()
	}
}

// runStopLoss triggers and works down a pending liquidation. Returns false
// while a liquidation is still pending after this event.
func (s *Session) runStopLoss(ts time.Time) bool {
	bestBid, hasBid := s.book.BestBid()
	bestAsk, hasAsk := s.book.BestAsk()

	if hasBid && hasAsk && s.acct.Position() != 0 {
		mid := (bestBid.Price + bestAsk.Price) / 2
		if s.stopLoss.ShouldTrigger(s.acct.Position(), s.acct.UnrealizedPnLPct(mid)) {
			s.stopLoss.Trigger(s.acct.Position(), ts)
			s.logger.Info("stop loss triggered",
				slog.Float64("position", s.acct.Position()),
				slog.Float64("mid", mid),
			)
		}
	}

	pending := s.stopLoss.Pending()
	if pending == nil {
		return true
	}

	// Long positions liquidate into bid depth, shorts into ask depth.
	var price, depth float64
	if pending.Side == domain.Sell {
		if !hasBid {
			return false
		}
		price, depth = bestBid.Price, bestBid.Quantity
	} else {
		if !hasAsk {
			return false
		}
		price, depth = bestAsk.Price, bestAsk.Quantity
	}
	if depth <= 0 {
		return false
	}

	fillQty := math.Min(pending.Remaining, depth)
	if fill, ok := s.acct.Apply(ts, pending.Side, price, fillQty, domain.FillStopLoss); ok {
		s.afterFill(fill, ts)
	}
	return s.stopLoss.Consume(fillQty) == 0
}

// quote evaluates both sides independently: candidate price joins the touch,
// size comes from the policy, and the liquidity gate decides activation.
func (s *Session) quote(ts time.Time) {
	bestBid, hasBid := s.book.BestBid()
	bestAsk, hasAsk := s.book.BestAsk()
	if !hasBid && !hasAsk {
		return
	}

	maxPos := s.cfg.MaxPosition
	if s.cfg.MaxNotional > 0 {
		var mid float64
		switch {
		case hasBid && hasAsk:
			mid = (bestBid.Price + bestAsk.Price) / 2
		case hasBid:
			mid = bestBid.Price
		default:
			mid = bestAsk.Price
		}
		if mid > 0 {
			maxPos = math.Min(maxPos, math.Floor(s.cfg.MaxNotional/mid))
		}
	}

	pos := s.acct.Position()
	if hasBid && s.policy.Eligible(&s.bid, ts, s.cfg.RefillInterval()) {
		headroom := maxPos - pos
		size := s.policy.OfferSize(&s.bid, ts, s.cfg.RefillInterval(), s.cfg.QuoteSizeBid, headroom)
		s.activateSide(&s.bid, domain.SideBid, bestBid.Price, size, ts)
	}
	if hasAsk && s.policy.Eligible(&s.ask, ts, s.cfg.RefillInterval()) {
		headroom := maxPos + pos
		size := s.policy.OfferSize(&s.ask, ts, s.cfg.RefillInterval(), s.cfg.QuoteSizeAsk, headroom)
		s.activateSide(&s.ask, domain.SideAsk, bestAsk.Price, size, ts)
	}
}

// activateSide applies the liquidity gate and updates one side's quote
// state. Ahead quantity is sampled from the displayed level at the candidate
// price; our order joins behind all of it, and the level never includes our
// own resting size.
func (s *Session) activateSide(st *strategy.SideState, side domain.Side, price, size float64, ts time.Time) {
	ahead := s.book.DepthAt(side, price)
	notional := price * ahead

	if notional < s.cfg.MinQuoteNotional || size <= 0 {
		// Suppressed: zero size and no displayed quote, but keep tracking
		// the candidate price and ahead depth for future checks.
		st.QuotePrice = price
		st.AheadQty = ahead
		st.OurRemaining = 0
		st.QuoteLive = false
		return
	}

	if s.policy.RepriceEveryEvent() {
		// A price change is a brand-new resting order: queue position resets
		// and ahead re-samples. At an unchanged price only the offered size
		// is refreshed (the cooldown may have changed it).
		if !st.QuoteLive || st.QuotePrice != price {
			st.QuotePrice = price
			st.AheadQty = ahead
			st.OurRemaining = size
		} else {
			st.OurRemaining = size
		}
		st.QuoteLive = true
		return
	}

	st.QuotePrice = price
	st.AheadQty = ahead
	st.OurRemaining = size
	st.QuoteLive = true
	st.MarkPlaced(ts)
}

// processTrade runs the two-stage queue simulation against both active
// quotes. Boundary prices are inclusive: a print exactly at our price fills.
func (s *Session) processTrade(ts time.Time, price, volume float64) {
	// Ask side: a print at or above our ask means we sold.
	if s.ask.QuoteLive && price >= s.ask.QuotePrice {
		s.consumeSide(&s.ask, domain.SideAsk, domain.Sell, ts, price, volume)
	}
	// Bid side: a print at or below our bid means we bought.
	if s.bid.QuoteLive && price <= s.bid.QuotePrice {
		s.consumeSide(&s.bid, domain.SideBid, domain.Buy, ts, price, volume)
	}
}

// consumeSide consumes tracked ahead quantity first, then our own remaining
// quantity. Only our own consumption produces a fill record; ahead
// consumption updates the queue estimate and the simulated book.
func (s *Session) consumeSide(st *strategy.SideState, side domain.Side, trade domain.TradeSide, ts time.Time, price, volume float64) {
	remaining := volume

	consumedAhead := math.Min(st.AheadQty, remaining)
	if consumedAhead > 0 {
		st.AheadQty -= consumedAhead
		remaining -= consumedAhead
		s.book.Remove(side, st.QuotePrice, consumedAhead)
	}

	if remaining <= 0 || st.OurRemaining <= 0 {
		return
	}

	consumedOurs := math.Min(st.OurRemaining, remaining)
	st.OurRemaining -= consumedOurs
	if fill, ok := s.acct.Apply(ts, trade, price, consumedOurs, domain.FillQuote); ok {
		s.afterFill(fill, ts)
	}
	if st.OurRemaining == 0 {
		st.QuoteLive = false
	}
}

// afterFill restarts the refill/cooldown timer of the side the fill belongs
// to: a buy fill resets the bid timer, a sell fill the ask timer.
func (s *Session) afterFill(fill domain.Fill, ts time.Time) {
	switch fill.Side.QuoteSide() {
	case domain.SideBid:
		s.bid.MarkFilled(ts)
	case domain.SideAsk:
		s.ask.MarkFilled(ts)
	}
	s.logger.Debug("fill",
		slog.String("side", string(fill.Side)),
		slog.Float64("price", fill.Price),
		slog.Float64("quantity", fill.Quantity),
		slog.Float64("position", fill.Position),
		slog.Float64("realized_pnl", fill.RealizedPnL),
	)
}

// Finish closes the session and returns its result. Reaching end of stream
// with an unresolved pending flatten is a data-completeness condition: the
// result carries the flag and the error wraps domain.ErrUnresolvedFlatten.
func (s *Session) Finish() (domain.Result, error) {
	res := domain.Result{
		Security:          s.security,
		Strategy:          s.policy.Name(),
		Position:          s.acct.Position(),
		RealizedPnL:       s.acct.RealizedPnL(),
		TotalPnL:          s.acct.TotalPnL(s.lastTradePrice, s.lastTradeSeen),
		Fills:             s.acct.Fills(),
		Counts:            s.counts,
		MarketDates:       sortedDates(s.marketDates),
		FillDates:         fillDates(s.acct.Fills()),
		UnresolvedFlatten: s.pendingFlatten,
	}
	if s.stopLoss != nil {
		res.StopLossTriggers = s.stopLoss.Triggers()
	}
	if s.pendingFlatten {
		return res, domain.ErrUnresolvedFlatten
	}
	return res, nil
}

func sortedDates(set map[time.Time]struct{}) []time.Time {
	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func fillDates(fills []domain.Fill) []time.Time {
	set := make(map[time.Time]struct{}, len(fills))
	for _, f := range fills {
		set[session.DateOf(f.Timestamp)] = struct{}{}
	}
	return sortedDates(set)
}
