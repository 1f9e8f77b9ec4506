package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/internal/storage"
	"github.com/scoreline-trading/scoreline/pkg/models"
)

// Collector is the data capture loop: it polls the game feed on an interval
// and persists every snapshot, live or not, so backtests can replay full
// event histories including the final state used for settlement.
type Collector struct {
	feed     GameFeed
	markets  MarketFeed
	store    storage.Store
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
}

// NewCollector builds a collector. markets may be nil when no market
// mapping is configured; replay synthesizes prices for those events.
func NewCollector(feed GameFeed, markets MarketFeed, store storage.Store, interval time.Duration, logger *logrus.Logger) *Collector {
	return &Collector{
		feed:     feed,
		markets:  markets,
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks until the context is canceled or Stop is called.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.WithField("poll_interval", c.interval.String()).Info("Starting collector loop")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Collector stopped")
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("Collector stopped")
			return nil
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect(ctx context.Context) {
	allGames, err := c.feed.AllLiveGames(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to fetch games")
		return
	}

	saved := 0
	for _, sport := range models.Sports() {
		for _, game := range allGames[sport] {
			if err := c.store.SaveGameState(ctx, game); err != nil {
				c.logger.WithError(err).WithField("event_id", game.EventID).Error("Failed to save game state")
				continue
			}
			saved++
			c.captureMarket(ctx, game)
		}
	}
	if saved > 0 {
		c.logger.WithField("snapshots", saved).Debug("Saved game snapshots")
	}
}

func (c *Collector) captureMarket(ctx context.Context, game models.GameState) {
	if c.markets == nil {
		return
	}
	market, err := c.markets.MarketFor(ctx, game)
	if err != nil {
		c.logger.WithError(err).WithField("event_id", game.EventID).Warn("Failed to fetch market")
		return
	}
	if market == nil {
		return
	}
	if err := c.store.SaveMarketState(ctx, game.EventID, *market); err != nil {
		c.logger.WithError(err).WithField("ticker", market.Ticker).Error("Failed to save market state")
	}
}
