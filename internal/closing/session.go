// Package closing implements the closing-auction strategy: accumulate VWAP
// over a pre-close window, place a buy below and a sell above it into the
// closing auction, then unwind the filled side at the entry VWAP during the
// next regular session, with an intraday stop loss and a forced flatten of
// anything still open at the following day's close. The position lifecycle
// deliberately spans a day boundary through a carried exit order.
package closing

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/mmsim/internal/account"
	"github.com/alanyoungcy/mmsim/internal/config"
	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/session"
)

// auctionOrder is an order staged for the closing print.
type auctionOrder struct {
	price    float64
	quantity float64
	side     domain.TradeSide
	vwapRef  float64
}

// exitOrder unwinds a filled auction entry at the entry VWAP on its target
// date; it fills partially by available trade volume when the price crosses.
type exitOrder struct {
	price      float64
	remaining  float64
	side       domain.TradeSide
	targetDate time.Time
}

// Stop-loss monitoring window within the regular session.
var (
	stopLossStart = session.TimeOfDay{Hour: 10, Minute: 10}
	stopLossEnd   = session.TimeOfDay{Hour: 14, Minute: 44}
)

// Session is the per-security closing-auction state machine. Like the
// market-making session it is a synchronous, single-owner event consumer.
type Session struct {
	security string
	cfg      config.SecurityConfig
	sched    session.Schedule
	logger   *slog.Logger
	acct     *account.Account

	// Daily state, reset at each day boundary.
	vwapSumPV     float64
	vwapSumV      float64
	ordersPlaced  bool
	closeDone     bool
	auctionVolume float64
	trend         []trendPoint
	buyOrder      *auctionOrder
	sellOrder     *auctionOrder

	// Carried across the day boundary.
	exit *exitOrder

	bestBid float64
	bestAsk float64

	counts       domain.EventCounts
	marketDates  map[time.Time]struct{}
	lastDate     time.Time
	lastPrice    float64
	lastSeen     bool
	stopTriggers int
	filteredSell int
	filteredBuy  int
}

// NewSession creates a closing-auction session for one security.
func NewSession(security string, cfg config.SecurityConfig, logger *slog.Logger) *Session {
	return &Session{
		security:    security,
		cfg:         cfg,
		sched:       session.Default(),
		logger:      logger.With(slog.String("component", "closing"), slog.String("security", security)),
		acct:        account.New(),
		marketDates: make(map[time.Time]struct{}),
	}
}

// Account exposes the accountant, mainly for tests.
func (s *Session) Account() *account.Account { return s.acct }

// ExitPending reports whether an exit order is carried, mainly for tests.
func (s *Session) ExitPending() bool { return s.exit != nil && s.exit.remaining > 0 }

func secondsOf(t session.TimeOfDay) int { return t.Hour*3600 + t.Minute*60 + t.Second }

func secOfDay(ts time.Time) int { return ts.Hour()*3600 + ts.Minute()*60 + ts.Second() }

func (s *Session) vwapWindowStart() int {
	return secondsOf(s.sched.ClosingAuctionStart) - s.cfg.VWAPPrecloseMin*60
}

// ProcessEvent advances the session by one market event.
func (s *Session) ProcessEvent(ev domain.MarketEvent) {
	ts := ev.Timestamp
	date := session.DateOf(ts)
	if !s.lastDate.IsZero() && !s.lastDate.Equal(date) {
		s.resetDaily()
	}
	s.lastDate = date

	if !ev.Valid() {
		return
	}
	s.counts.Add(ev.Kind)

	switch ev.Kind {
	case domain.EventBid:
		s.bestBid = ev.Price
	case domain.EventAsk:
		s.bestAsk = ev.Price
	case domain.EventTrade:
		s.marketDates[date] = struct{}{}
		s.lastPrice = ev.Price
		s.lastSeen = true
	}

	sec := secOfDay(ts)
	phase := s.sched.Classify(ts)
	regular := phase == session.PhaseContinuous || phase == session.PhaseSilent

	// Intraday stop loss on the carried position, within its own window.
	if sec >= secondsOf(stopLossStart) && sec < secondsOf(stopLossEnd) {
		s.checkStopLoss(ts)
	}

	// Work down the exit order against regular-session trades.
	if ev.Kind == domain.EventTrade && regular {
		s.processExit(ts, ev.Price, ev.Volume)
		s.trend = append(s.trend, trendPoint{
			hours: float64(sec-secondsOf(s.sched.ContinuousStart)) / 3600,
			price: ev.Price,
		})
	}

	// VWAP accumulation over the pre-close window.
	if ev.Kind == domain.EventTrade && !s.ordersPlaced &&
		sec >= s.vwapWindowStart() && sec < secondsOf(s.sched.ClosingAuctionStart) {
		s.vwapSumPV += ev.Price * ev.Volume
		s.vwapSumV += ev.Volume
	}

	// At the closing-auction start, stage the entry orders once.
	if !s.ordersPlaced &&
		sec >= secondsOf(s.sched.ClosingAuctionStart) && sec < secondsOf(s.sched.EODCutoff) {
		s.placeAuctionOrders(ts)
	}

	// Auction volume accumulates through the closing auction; it caps how
	// much of our order the closing print can realistically fill.
	if ev.Kind == domain.EventTrade && sec >= secondsOf(s.sched.ClosingAuctionStart) && !s.closeDone {
		s.auctionVolume += ev.Volume
	}

	// The first trade at or after the cutoff is the closing print.
	if ev.Kind == domain.EventTrade && sec >= secondsOf(s.sched.EODCutoff) && !s.closeDone {
		s.processClosingPrint(ts, ev.Price)
	}
}

func (s *Session) resetDaily() {
	s.vwapSumPV = 0
	s.vwapSumV = 0
	s.ordersPlaced = false
	s.closeDone = false
	s.auctionVolume = 0
	s.trend = s.trend[:0]
	s.buyOrder = nil
	s.sellOrder = nil
	s.bestBid = 0
	s.bestAsk = 0
}

// checkStopLoss liquidates the whole carried position at the touch when the
// unrealized loss against the entry exceeds the threshold: longs mark and
// exit at the best bid, shorts at the best ask.
func (s *Session) checkStopLoss(ts time.Time) {
	pos := s.acct.Position()
	if pos == 0 {
		return
	}
	entry := s.acct.EntryPrice()
	if entry <= 0 {
		return
	}

	var mark float64
	if pos > 0 {
		mark = s.bestBid
	} else {
		mark = s.bestAsk
	}
	if mark <= 0 {
		return
	}

	var pnlPct float64
	if pos > 0 {
		pnlPct = (mark - entry) / entry * 100
	} else {
		pnlPct = (entry - mark) / entry * 100
	}
	if pnlPct >= -s.cfg.StopLossThresholdPct {
		return
	}

	if fill, ok := s.acct.Flatten(ts, mark, domain.FillStopLoss); ok {
		s.stopTriggers++
		s.exit = nil
		s.logger.Info("closing stop loss",
			slog.Float64("mark", mark),
			slog.Float64("quantity", fill.Quantity),
			slog.Float64("realized_pnl", fill.RealizedPnL),
		)
	}
}

func (s *Session) processExit(ts time.Time, price, volume float64) {
	if s.exit == nil || s.exit.remaining <= 0 {
		return
	}
	if session.DateOf(ts).Before(s.exit.targetDate) {
		return
	}

	crossed := false
	if s.exit.side == domain.Sell {
		crossed = price >= s.exit.price
	} else {
		crossed = price <= s.exit.price
	}
	if !crossed {
		return
	}

	fillQty := math.Min(s.exit.remaining, volume)
	if fillQty <= 0 {
		return
	}
	if _, ok := s.acct.Apply(ts, s.exit.side, price, fillQty, domain.FillVWAPExit); ok {
		s.exit.remaining -= fillQty
		if s.exit.remaining <= 0 {
			s.exit = nil
		}
	}
}

func (s *Session) placeAuctionOrders(ts time.Time) {
	s.ordersPlaced = true
	if s.vwapSumV <= 0 {
		return
	}
	vwap := s.vwapSumPV / s.vwapSumV
	if vwap <= 0 {
		return
	}

	quantity := math.Round(s.cfg.OrderNotional / vwap)
	if quantity <= 0 {
		return
	}

	spread := s.cfg.SpreadVWAPPct / 100
	buyRaw := vwap * (1 - spread)
	sellRaw := vwap * (1 + spread)
	buyPrice := RoundToTick(buyRaw, TickSize(s.cfg.Exchange, buyRaw))
	sellPrice := RoundToTick(sellRaw, TickSize(s.cfg.Exchange, sellRaw))

	slope := trendSlopeBpsPerHour(s.trend)
	filterSell := *s.cfg.TrendFilterSell && slope > s.cfg.TrendFilterSellBps
	filterBuy := *s.cfg.TrendFilterBuy && slope < -s.cfg.TrendFilterBuyBps
	if filterSell {
		s.filteredSell++
	}
	if filterBuy {
		s.filteredBuy++
	}

	if !filterBuy {
		s.buyOrder = &auctionOrder{price: buyPrice, quantity: quantity, side: domain.Buy, vwapRef: vwap}
	}
	if !filterSell {
		s.sellOrder = &auctionOrder{price: sellPrice, quantity: quantity, side: domain.Sell, vwapRef: vwap}
	}

	s.logger.Debug("auction orders placed",
		slog.Float64("vwap", vwap),
		slog.Float64("buy", buyPrice),
		slog.Float64("sell", sellPrice),
		slog.Float64("quantity", quantity),
		slog.Float64("trend_bps_hr", slope),
	)
}

// processClosingPrint handles the closing auction print: first flatten any
// exit order that was due today and never filled, then check whether the
// print crosses either staged entry.
func (s *Session) processClosingPrint(ts time.Time, closePrice float64) {
	s.closeDone = true
	today := session.DateOf(ts)

	if s.exit != nil && s.exit.remaining > 0 && !s.exit.targetDate.After(today) {
		if _, ok := s.acct.Apply(ts, s.exit.side, closePrice, s.exit.remaining, domain.FillEODFlatten); ok {
			s.exit = nil
		}
	}

	if s.buyOrder != nil && closePrice <= s.buyOrder.price {
		s.executeEntry(ts, s.buyOrder, closePrice)
	}
	if s.sellOrder != nil && closePrice >= s.sellOrder.price {
		s.executeEntry(ts, s.sellOrder, closePrice)
	}
}

func (s *Session) executeEntry(ts time.Time, order *auctionOrder, closePrice float64) {
	// Entry fills are capped at a fraction of observed auction volume so we
	// never assume more participation than the auction could bear.
	maxFill := s.auctionVolume * s.cfg.AuctionFillPct / 100
	fillQty := math.Min(order.quantity, math.Floor(maxFill))
	if fillQty <= 0 {
		return
	}

	fill, ok := s.acct.Apply(ts, order.side, closePrice, fillQty, domain.FillAuctionEntry)
	if !ok {
		return
	}

	exitSide := domain.Sell
	if order.side == domain.Sell {
		exitSide = domain.Buy
	}
	exitPrice := RoundToTick(order.vwapRef, TickSize(s.cfg.Exchange, order.vwapRef))
	s.exit = &exitOrder{
		price:      exitPrice,
		remaining:  fillQty,
		side:       exitSide,
		targetDate: session.DateOf(ts).AddDate(0, 0, 1),
	}

	s.logger.Debug("auction entry",
		slog.String("side", string(order.side)),
		slog.Float64("price", closePrice),
		slog.Float64("quantity", fill.Quantity),
		slog.Float64("exit_price", exitPrice),
	)
}

// Finish closes the session and returns its result.
func (s *Session) Finish() (domain.Result, error) {
	res := domain.Result{
		Security:         s.security,
		Strategy:         "closing_auction",
		Position:         s.acct.Position(),
		RealizedPnL:      s.acct.RealizedPnL(),
		TotalPnL:         s.acct.TotalPnL(s.lastPrice, s.lastSeen),
		Fills:            s.acct.Fills(),
		Counts:           s.counts,
		MarketDates:      sortedDates(s.marketDates),
		FillDates:        fillDatesOf(s.acct.Fills()),
		StopLossTriggers: s.stopTriggers,
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

func fillDatesOf(fills []domain.Fill) []time.Time {
	set := make(map[time.Time]struct{}, len(fills))
	for _, f := range fills {
		set[session.DateOf(f.Timestamp)] = struct{}{}
	}
	return sortedDates(set)
}
