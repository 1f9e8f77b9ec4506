package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/internal/storage"
	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

// Pipeline runs one decision tick: Strategy -> Risk Manager -> Dispatch.
// The same pipeline serves live trading and replay, which is what keeps
// backtests honest. A tick terminates in exactly one of executed, rejected,
// or failed; risk state mutates only on executed.
type Pipeline struct {
	risk       *risk.Manager
	dispatcher *Dispatcher
	store      storage.Store // optional; nil disables persistence
	logger     *logrus.Logger

	now   func() time.Time
	newID func() string
}

func NewPipeline(riskMgr *risk.Manager, dispatcher *Dispatcher, store storage.Store, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		risk:       riskMgr,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *Pipeline) WithIDFunc(newID func() string) *Pipeline {
	if newID != nil {
		p.newID = newID
	}
	return p
}

// RunTick evaluates one strategy against one state triple. Returns nil when
// the strategy produced no signal: that tick leaves no record at all.
func (p *Pipeline) RunTick(ctx context.Context, strat *strategy.Strategy, game models.GameState, market models.MarketState, position *models.Position) (*models.TradeRecord, error) {
	sig := strat.Evaluate(game, market, position)
	if !sig.IsActionable() {
		return nil, nil
	}

	log := p.logger.WithFields(logrus.Fields{
		"strategy": strat.Name(),
		"ticker":   sig.Ticker,
		"signal":   sig.Signal,
		"size":     sig.Size,
		"reason":   sig.Reason,
	})

	approved := p.risk.Review(sig, strat.Overrides())
	if approved == nil {
		// A risk rejection is a normal outcome, not an error.
		log.Info("Signal rejected by risk limits")
		rec := p.rejectedRecord(sig, game)
		p.persist(ctx, sig, rec, false)
		return &rec, nil
	}

	rec, err := p.dispatcher.Dispatch(ctx, approved, game, market)
	if err != nil {
		// A failed dispatch never corrupts risk state; nothing filled.
		log.WithError(err).Error("Dispatch failed")
		p.persist(ctx, approved, rec, false)
		return &rec, nil
	}

	p.risk.RecordFill(approved, rec.FillPrice, 0)
	log.WithFields(logrus.Fields{
		"fill_price": rec.FillPrice,
		"simulated":  rec.Simulated,
	}).Info("Trade executed")
	p.persist(ctx, approved, rec, true)
	return &rec, nil
}

func (p *Pipeline) rejectedRecord(sig *models.TradeSignal, game models.GameState) models.TradeRecord {
	return models.TradeRecord{
		ID:        p.newID(),
		Timestamp: p.now(),
		EventID:   game.EventID,
		Sport:     game.Sport,
		Matchup:   game.Matchup(),
		Strategy:  sig.Strategy,
		Signal:    *sig,
		Status:    models.TradeStatusRejected,
		Simulated: p.dispatcher.Mode() != ModeLive,
	}
}

// persist appends the signal and record to the store. Persistence failures
// are logged, never allowed to fail the tick.
func (p *Pipeline) persist(ctx context.Context, sig *models.TradeSignal, rec models.TradeRecord, executed bool) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveSignal(ctx, *sig, executed); err != nil {
		p.logger.WithError(err).Warn("Failed to persist signal")
	}
	if err := p.store.SaveTradeRecord(ctx, rec); err != nil {
		p.logger.WithError(err).Warn("Failed to persist trade record")
	}
}
