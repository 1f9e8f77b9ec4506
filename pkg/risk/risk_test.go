package risk

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func buySignal(ticker string, size, price int) *models.TradeSignal {
	return &models.TradeSignal{
		Signal:   models.SignalBuy,
		Ticker:   ticker,
		Side:     models.OrderSideYes,
		Size:     size,
		Price:    price,
		Strategy: "test",
	}
}

func TestReviewPassesWithinLimits(t *testing.T) {
	m := NewManager(DefaultLimits(), testLogger())

	approved := m.Review(buySignal("KXNBA-LAL", 10, 50), nil)
	require.NotNil(t, approved)
	assert.Equal(t, 10, approved.Size)
}

func TestReviewShrinksToHeadroom(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxPosition = 50
	m := NewManager(lim, testLogger())

	m.SetPosition(models.Position{Ticker: "KXNBA-LAL", Count: 45})

	approved := m.Review(buySignal("KXNBA-LAL", 10, 0), nil)
	require.NotNil(t, approved)
	assert.Equal(t, 5, approved.Size)
	assert.Contains(t, approved.Reason, "reduced from 10 to 5")
}

func TestReviewRejectsAtPositionLimit(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxPosition = 50
	m := NewManager(lim, testLogger())

	m.SetPosition(models.Position{Ticker: "KXNBA-LAL", Count: 50})

	assert.Nil(t, m.Review(buySignal("KXNBA-LAL", 1, 0), nil))
}

func TestReviewPositionLimitIsSymmetric(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxPosition = 20
	m := NewManager(lim, testLogger())

	m.SetPosition(models.Position{Ticker: "KXNFL-KC", Count: -18})

	sell := buySignal("KXNFL-KC", 10, 0)
	sell.Signal = models.SignalSell
	approved := m.Review(sell, nil)
	require.NotNil(t, approved)
	assert.Equal(t, 2, approved.Size)
}

func TestDailyLossGateUsesCurrentAccumulator(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxDailyLoss = 500
	m := NewManager(lim, testLogger())

	// A loss of 300 leaves the accumulator under the limit; the next
	// signal passes even though its own worst case would breach it.
	m.RecordPnL(-300)
	require.NotNil(t, m.Review(buySignal("KXNFL-KC", 10, 40), nil))
	assert.False(t, m.DailyLossReached())

	// A second 300 loss puts the accumulator at 600 >= 500: gate closes.
	m.RecordPnL(-300)
	assert.Nil(t, m.Review(buySignal("KXNFL-KC", 10, 40), nil))
	assert.True(t, m.DailyLossReached())
}

func TestDailyLossGateIsInclusive(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxDailyLoss = 500
	m := NewManager(lim, testLogger())

	m.RecordPnL(-499)
	require.NotNil(t, m.Review(buySignal("A", 1, 10), nil))

	m.RecordPnL(-1) // exactly at the limit
	assert.Nil(t, m.Review(buySignal("A", 1, 10), nil))
}

func TestProfitsOffsetLosses(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxDailyLoss = 500
	m := NewManager(lim, testLogger())

	m.RecordPnL(-600)
	require.True(t, m.DailyLossReached())

	m.RecordPnL(200) // net -400, back under the limit
	assert.False(t, m.DailyLossReached())
	assert.NotNil(t, m.Review(buySignal("A", 1, 10), nil))
}

func TestExposureLimits(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxExposurePerMarket = 1000
	lim.MaxTotalExposure = 1500
	m := NewManager(lim, testLogger())

	// 20 * 40 = 800 fits per-market.
	sig := buySignal("A", 20, 40)
	approved := m.Review(sig, nil)
	require.NotNil(t, approved)
	m.RecordFill(approved, 40, 0)

	// Another 800 would take market A to 1600 > 1000.
	assert.Nil(t, m.Review(buySignal("A", 20, 40), nil))

	// A different market fits per-market but 800+800 > 1500 total.
	assert.Nil(t, m.Review(buySignal("B", 20, 40), nil))
	// A smaller one fits both: 800 + 600 <= 1500.
	assert.NotNil(t, m.Review(buySignal("B", 15, 40), nil))
}

func TestMarketOrdersSkipExposureChecks(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxExposurePerMarket = 100
	m := NewManager(lim, testLogger())

	// Price 0 means market order: no notional to check upfront.
	assert.NotNil(t, m.Review(buySignal("A", 50, 0), nil))
}

func TestStrategyOverridesNarrowLimits(t *testing.T) {
	m := NewManager(DefaultLimits(), testLogger())

	ov := &strategy.RiskOverrides{MaxPosition: 5}
	approved := m.Review(buySignal("A", 10, 0), ov)
	require.NotNil(t, approved)
	assert.Equal(t, 5, approved.Size)

	// Zero override fields inherit the global limit.
	approved = m.Review(buySignal("A", 10, 0), &strategy.RiskOverrides{})
	require.NotNil(t, approved)
	assert.Equal(t, 10, approved.Size)
}

func TestReviewDoesNotMutateState(t *testing.T) {
	m := NewManager(DefaultLimits(), testLogger())

	for i := 0; i < 5; i++ {
		require.NotNil(t, m.Review(buySignal("A", 10, 50), nil))
	}
	assert.Equal(t, 0, m.Position("A"), "review alone must not move positions")
}

func TestRecordFillMovesState(t *testing.T) {
	m := NewManager(DefaultLimits(), testLogger())

	sig := buySignal("A", 10, 50)
	m.RecordFill(sig, 52, 0)
	assert.Equal(t, 10, m.Position("A"))

	sell := buySignal("A", 4, 50)
	sell.Signal = models.SignalSell
	m.RecordFill(sell, 48, 0)
	assert.Equal(t, 6, m.Position("A"))
}

func TestTradingDayRollover(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	current := time.Date(2026, 1, 15, 22, 0, 0, 0, loc)
	lim := DefaultLimits()
	lim.MaxDailyLoss = 500
	m := NewManager(lim, testLogger()).WithClock(func() time.Time { return current })

	m.RecordPnL(-600)
	require.True(t, m.DailyLossReached())

	// Crossing midnight Eastern resets the accumulator.
	current = time.Date(2026, 1, 16, 0, 1, 0, 0, loc)
	assert.False(t, m.DailyLossReached())
	assert.NotNil(t, m.Review(buySignal("A", 1, 10), nil))
}

func TestRolloverBoundaryIsEastern(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 23:00 Eastern on Jan 15 is already Jan 16 UTC; the day must not roll.
	current := time.Date(2026, 1, 15, 21, 0, 0, 0, loc)
	lim := DefaultLimits()
	lim.MaxDailyLoss = 500
	m := NewManager(lim, testLogger()).WithClock(func() time.Time { return current })

	m.RecordPnL(-600)
	current = time.Date(2026, 1, 15, 23, 0, 0, 0, loc)
	assert.True(t, m.DailyLossReached())
}

func TestRehydrate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, loc)

	lim := DefaultLimits()
	lim.MaxDailyLoss = 500
	m := NewManager(lim, testLogger()).WithClock(func() time.Time { return now })

	records := []models.TradeRecord{
		{
			Status:    models.TradeStatusExecuted,
			Timestamp: now.Add(-2 * time.Hour),
			Signal:    *buySignal("A", 10, 40),
			FillPrice: 40,
			PnL:       -600,
		},
		{ // rejected trades never touch risk state
			Status:    models.TradeStatusRejected,
			Timestamp: now.Add(-1 * time.Hour),
			Signal:    *buySignal("A", 10, 40),
		},
		{ // yesterday's trades are out of scope
			Status:    models.TradeStatusExecuted,
			Timestamp: now.Add(-24 * time.Hour),
			Signal:    *buySignal("A", 10, 40),
			PnL:       -1000,
		},
	}
	m.Rehydrate(records)

	assert.Equal(t, 10, m.Position("A"))
	assert.True(t, m.DailyLossReached(), "today's 600 loss alone exhausts the 500 budget")
}

func TestSummary(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxDailyLoss = 1000
	m := NewManager(lim, testLogger())

	sig := buySignal("A", 10, 40)
	m.RecordFill(sig, 40, 0)
	m.RecordPnL(-300)

	sum := m.Summary()
	assert.Equal(t, 10, sum.Positions["A"])
	assert.Equal(t, 400, sum.TotalExposure)
	assert.Equal(t, -300, sum.DailyPnL)
	assert.Equal(t, 700, sum.DailyLossRemaining)
	assert.Equal(t, 1, sum.TradesToday)
	assert.False(t, sum.DailyLimitReached)
}
