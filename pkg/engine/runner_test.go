package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

func testRunner(t *testing.T, feed GameFeed, markets MarketFeed, store *memStore, limits risk.Limits) (*Runner, *risk.Manager) {
	t.Helper()
	pipeline, mgr := newPipeline(store, ModeDryRun, nil, limits)
	strategies := []*strategy.Strategy{leadStrategy(t)}
	return NewRunner(feed, markets, pipeline, mgr, strategies, 0, testLogger()), mgr
}

func TestCycleExecutesMatchingStrategy(t *testing.T) {
	store := &memStore{}
	feed := &fakeFeed{games: map[models.Sport][]models.GameState{
		models.SportNFL: {testGame()},
	}}
	market := testMarket()
	r, mgr := testRunner(t, feed, &fakeMarkets{market: &market}, store, risk.DefaultLimits())

	r.runCycle(context.Background())

	require.Len(t, store.records, 1)
	assert.Equal(t, models.TradeStatusExecuted, store.records[0].Status)
	assert.Equal(t, 10, mgr.Position("KXNFLGAME-KC"))
}

func TestCycleSkipsUnmappedGames(t *testing.T) {
	store := &memStore{}
	feed := &fakeFeed{games: map[models.Sport][]models.GameState{
		models.SportNFL: {testGame()},
	}}
	r, _ := testRunner(t, feed, &fakeMarkets{}, store, risk.DefaultLimits())

	r.runCycle(context.Background())
	assert.Empty(t, store.records, "a game without a mapped market is not evaluated")
}

func TestCycleHaltsAtDailyLossLimit(t *testing.T) {
	store := &memStore{}
	feed := &fakeFeed{games: map[models.Sport][]models.GameState{
		models.SportNFL: {testGame()},
	}}
	market := testMarket()
	limits := risk.DefaultLimits()
	limits.MaxDailyLoss = 100
	r, mgr := testRunner(t, feed, &fakeMarkets{market: &market}, store, limits)
	mgr.RecordPnL(-100)

	r.runCycle(context.Background())
	assert.Empty(t, store.records, "cycle short-circuits once the loss budget is gone")
}

func TestCycleSeedsPositionsFromVenue(t *testing.T) {
	store := &memStore{}
	feed := &fakeFeed{games: map[models.Sport][]models.GameState{
		models.SportNFL: {testGame()},
	}}
	market := testMarket()
	markets := &fakeMarkets{market: &market}
	limits := risk.DefaultLimits()
	limits.MaxPosition = 12
	pipeline, mgr := newPipeline(store, ModeDryRun, nil, limits)

	// Venue reports 8 contracts; the 10-contract signal shrinks to 4.
	r := NewRunner(feed, &positionFeed{fakeMarkets: markets, count: 8}, pipeline, mgr, []*strategy.Strategy{leadStrategy(t)}, 0, testLogger())
	r.runCycle(context.Background())

	require.Len(t, store.records, 1)
	assert.Equal(t, 4, store.records[0].Signal.Size)
	assert.Equal(t, 12, mgr.Position("KXNFLGAME-KC"))
}

type positionFeed struct {
	*fakeMarkets
	count int
}

func (p *positionFeed) PositionFor(ctx context.Context, ticker string) (*models.Position, error) {
	return &models.Position{Ticker: ticker, Count: p.count}, nil
}
