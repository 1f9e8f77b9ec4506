package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

// GameFeed yields live game snapshots across all tracked sports.
type GameFeed interface {
	AllLiveGames(ctx context.Context) (map[models.Sport][]models.GameState, error)
}

// MarketFeed resolves a game to its market snapshot and current position.
type MarketFeed interface {
	MarketFor(ctx context.Context, game models.GameState) (*models.MarketState, error)
	PositionFor(ctx context.Context, ticker string) (*models.Position, error)
}

// Runner is the live polling loop. One tick fetches the latest state for
// every tracked event, then runs the pipeline sequentially per event:
// there is exactly one writer against risk state at a time, and a stop
// signal takes effect between ticks, never mid-tick.
type Runner struct {
	feed       GameFeed
	markets    MarketFeed
	pipeline   *Pipeline
	riskMgr    *risk.Manager
	strategies []*strategy.Strategy
	interval   time.Duration
	logger     *logrus.Logger
	stopCh     chan struct{}
}

func NewRunner(feed GameFeed, markets MarketFeed, pipeline *Pipeline, riskMgr *risk.Manager, strategies []*strategy.Strategy, interval time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{
		feed:       feed,
		markets:    markets,
		pipeline:   pipeline,
		riskMgr:    riskMgr,
		strategies: strategies,
		interval:   interval,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Run blocks until the context is canceled or Stop is called.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"strategies":    len(r.strategies),
		"poll_interval": r.interval.String(),
	}).Info("Starting trading loop")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// First cycle runs immediately rather than waiting a full interval.
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Trading loop stopped")
			return ctx.Err()
		case <-r.stopCh:
			r.logger.Info("Trading loop stopped")
			return nil
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) Stop() {
	close(r.stopCh)
}

// runCycle is one full tick. Any single-event failure is logged and the
// cycle continues with the remaining events.
func (r *Runner) runCycle(ctx context.Context) {
	if r.riskMgr.DailyLossReached() {
		r.logger.Warn("Daily loss limit reached, skipping cycle")
		return
	}

	allGames, err := r.feed.AllLiveGames(ctx)
	if err != nil {
		// A missing tick is "no evaluation this cycle", not an error.
		r.logger.WithError(err).Warn("Failed to fetch live games")
		return
	}
	if len(allGames) == 0 {
		r.logger.Debug("No live games")
		return
	}

	for _, sport := range models.Sports() {
		for _, game := range allGames[sport] {
			r.processGame(ctx, game)
		}
	}
}

func (r *Runner) processGame(ctx context.Context, game models.GameState) {
	log := r.logger.WithFields(logrus.Fields{
		"event_id": game.EventID,
		"matchup":  game.Matchup(),
	})

	market, err := r.markets.MarketFor(ctx, game)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch market")
		return
	}
	if market == nil {
		log.Debug("No market mapped for game")
		return
	}

	position, err := r.markets.PositionFor(ctx, market.Ticker)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch position")
	} else if position != nil {
		r.riskMgr.SetPosition(*position)
	}

	for _, strat := range r.strategies {
		if !strat.AppliesTo(game.Sport) {
			continue
		}
		if _, err := r.pipeline.RunTick(ctx, strat, game, *market, position); err != nil {
			log.WithError(err).WithField("strategy", strat.Name()).Error("Tick failed")
		}
	}
}
