package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

// Limits configures the risk gate. All monetary values are in cents.
type Limits struct {
	MaxPosition          int
	MaxDailyLoss         int
	MaxExposurePerMarket int
	MaxTotalExposure     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPosition:          100,
		MaxDailyLoss:         50000,  // $500
		MaxExposurePerMarket: 20000,  // $200
		MaxTotalExposure:     100000, // $1000
	}
}

// Manager is the stateful gate between strategies and dispatch. It holds the
// process-wide risk state: per-market positions and exposure, and the daily
// realized P&L with its trading-day boundary. Review only reads state; the
// state mutates solely through RecordFill/RecordPnL on confirmed outcomes.
//
// Live mode runs ticks sequentially so there is exactly one writer at a
// time; the mutex covers the status API reading summaries concurrently.
type Manager struct {
	limits Limits
	log    *logrus.Logger

	mu          sync.Mutex
	positions   map[string]int // ticker -> signed contracts
	exposure    map[string]int // ticker -> cents at risk
	dailyPnL    int            // cents, negative when losing
	tradeDate   time.Time      // midnight of the current trading day
	tradesToday int

	loc *time.Location
	now func() time.Time
}

func NewManager(limits Limits, log *logrus.Logger) *Manager {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	m := &Manager{
		limits:    limits,
		log:       log,
		positions: make(map[string]int),
		exposure:  make(map[string]int),
		loc:       loc,
		now:       time.Now,
	}
	m.tradeDate = dayOf(m.now(), loc)
	return m
}

// WithClock swaps the wall clock. Replay drives the manager with snapshot
// timestamps so that day rollover happens at historical boundaries.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

// rollover resets the daily accumulators when the trading day changes. A
// long-running process detects the boundary on its own, independent of
// restarts. Caller holds the lock.
func (m *Manager) rollover() {
	today := dayOf(m.now(), m.loc)
	if !today.Equal(m.tradeDate) {
		if m.log != nil {
			m.log.WithFields(logrus.Fields{
				"previous_day": m.tradeDate.Format("2006-01-02"),
				"daily_pnl":    m.dailyPnL,
				"trades":       m.tradesToday,
			}).Info("Trading day rollover, resetting daily accumulators")
		}
		m.dailyPnL = 0
		m.tradesToday = 0
		m.tradeDate = today
	}
}

func (m *Manager) effective(ov *strategy.RiskOverrides) Limits {
	lim := m.limits
	if ov == nil {
		return lim
	}
	if ov.MaxPosition > 0 {
		lim.MaxPosition = ov.MaxPosition
	}
	if ov.MaxExposurePerMarket > 0 {
		lim.MaxExposurePerMarket = ov.MaxExposurePerMarket
	}
	return lim
}

// dailyLoss is the accumulated loss for the day: positive cents when the
// daily P&L is negative, zero otherwise. Caller holds the lock.
func (m *Manager) dailyLoss() int {
	if m.dailyPnL < 0 {
		return -m.dailyPnL
	}
	return 0
}

// Review gates a proposed signal. Checks apply in order; the first failing
// check decides the outcome:
//
//  1. Daily loss limit: accumulated loss already at or over the limit blocks
//     the signal outright. The comparison is against the current
//     accumulator, never a prospective loss.
//  2. Per-market (and total) exposure: the added notional must fit.
//  3. Position limit: the signal shrinks to the remaining headroom; a
//     headroom of zero rejects.
//
// Review never mutates risk state; that happens only on a confirmed fill.
// Returns nil on rejection, possibly a reduced copy on acceptance.
func (m *Manager) Review(sig *models.TradeSignal, ov *strategy.RiskOverrides) *models.TradeSignal {
	if !sig.IsActionable() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	lim := m.effective(ov)

	if m.dailyLoss() >= lim.MaxDailyLoss {
		m.logReject(sig, fmt.Sprintf("daily loss %d at limit %d", m.dailyLoss(), lim.MaxDailyLoss))
		return nil
	}

	if sig.Price > 0 {
		added := sig.Size * sig.Price
		if m.exposure[sig.Ticker]+added > lim.MaxExposurePerMarket {
			m.logReject(sig, fmt.Sprintf("market exposure %d + %d over limit %d",
				m.exposure[sig.Ticker], added, lim.MaxExposurePerMarket))
			return nil
		}
		if m.totalExposure()+added > lim.MaxTotalExposure {
			m.logReject(sig, fmt.Sprintf("total exposure %d + %d over limit %d",
				m.totalExposure(), added, lim.MaxTotalExposure))
			return nil
		}
	}

	current := m.positions[sig.Ticker]
	next := current + sig.SignedSize()
	if abs(next) <= lim.MaxPosition {
		return sig
	}

	headroom := lim.MaxPosition - abs(current)
	if headroom <= 0 {
		m.logReject(sig, fmt.Sprintf("position %d already at limit %d", current, lim.MaxPosition))
		return nil
	}

	reduced := *sig
	reduced.Size = headroom
	reduced.Reason = fmt.Sprintf("%s (reduced from %d to %d)", sig.Reason, sig.Size, headroom)
	return &reduced
}

func (m *Manager) logReject(sig *models.TradeSignal, why string) {
	if m.log == nil {
		return
	}
	m.log.WithFields(logrus.Fields{
		"ticker":   sig.Ticker,
		"strategy": sig.Strategy,
		"size":     sig.Size,
		"reason":   sig.Reason,
	}).Warnf("Signal rejected: %s", why)
}

// RecordFill applies a confirmed execution to risk state. Called exactly
// once per EXECUTED tick, for live and simulated fills alike.
func (m *Manager) RecordFill(sig *models.TradeSignal, fillPrice, realizedPnL int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	m.positions[sig.Ticker] += sig.SignedSize()
	m.exposure[sig.Ticker] += sig.Size * fillPrice
	m.dailyPnL += realizedPnL
	m.tradesToday++
}

// RecordPnL applies a realized profit or loss that arrives outside a fill,
// such as a settlement marking a position to its final value.
func (m *Manager) RecordPnL(pnl int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	m.dailyPnL += pnl
}

// SetPosition replaces the tracked position for a market from an
// authoritative venue snapshot.
func (m *Manager) SetPosition(pos models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Ticker] = pos.Count
	m.exposure[pos.Ticker] = pos.MarketExposure
}

// Rehydrate reseeds risk state from the current trading day's persisted
// trade records, so a restart does not forget accumulated losses.
func (m *Manager) Rehydrate(records []models.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	for _, rec := range records {
		if rec.Status != models.TradeStatusExecuted {
			continue
		}
		if !dayOf(rec.Timestamp, m.loc).Equal(m.tradeDate) {
			continue
		}
		m.positions[rec.Signal.Ticker] += rec.Signal.SignedSize()
		m.exposure[rec.Signal.Ticker] += rec.Signal.Size * rec.FillPrice
		m.dailyPnL += rec.PnL
		m.tradesToday++
	}
}

// DailyLossReached reports whether the daily loss budget is exhausted.
func (m *Manager) DailyLossReached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.dailyLoss() >= m.limits.MaxDailyLoss
}

func (m *Manager) Position(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[ticker]
}

// totalExposure sums cents at risk across all markets. Caller holds the lock.
func (m *Manager) totalExposure() int {
	total := 0
	for _, e := range m.exposure {
		total += e
	}
	return total
}

// Summary is a point-in-time view of risk state for logging and the status API.
type Summary struct {
	Positions          map[string]int `json:"positions"`
	TotalExposure      int            `json:"total_exposure"`
	DailyPnL           int            `json:"daily_pnl"`
	DailyLossRemaining int            `json:"daily_loss_remaining"`
	TradesToday        int            `json:"trades_today"`
	DailyLimitReached  bool           `json:"daily_limit_reached"`
	TradeDate          string         `json:"trade_date"`
}

func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	positions := make(map[string]int, len(m.positions))
	for k, v := range m.positions {
		positions[k] = v
	}
	remaining := m.limits.MaxDailyLoss - m.dailyLoss()
	if remaining < 0 {
		remaining = 0
	}
	return Summary{
		Positions:          positions,
		TotalExposure:      m.totalExposure(),
		DailyPnL:           m.dailyPnL,
		DailyLossRemaining: remaining,
		TradesToday:        m.tradesToday,
		DailyLimitReached:  m.dailyLoss() >= m.limits.MaxDailyLoss,
		TradeDate:          m.tradeDate.Format("2006-01-02"),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
