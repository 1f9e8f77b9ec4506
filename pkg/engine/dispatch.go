package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

type Mode string

const (
	ModeLive     Mode = "live"
	ModeDryRun   Mode = "dry_run"
	ModeBacktest Mode = "backtest"
)

// OrderPlacer is the execution collaborator. Live dispatch delegates order
// placement here; dry-run and backtest never touch it.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, order models.OrderRequest) (models.Order, error)
}

// DispatchError is an execution failure that survived the retry budget.
// The tick resolves to FAILED and the next tick proceeds normally.
type DispatchError struct {
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher routes approved signals to execution. In live mode orders go
// to the venue; in dry-run and backtest a fill is synthesized so that risk
// state evolves identically to a live fill.
type Dispatcher struct {
	exec    OrderPlacer
	mode    Mode
	retries int
	logger  *logrus.Logger

	now   func() time.Time
	newID func() string
}

func NewDispatcher(exec OrderPlacer, mode Mode, retries int, logger *logrus.Logger) *Dispatcher {
	if retries < 1 {
		retries = 1
	}
	return &Dispatcher{
		exec:    exec,
		mode:    mode,
		retries: retries,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// WithClock swaps the wall clock; replay drives records with snapshot time.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// WithIDFunc swaps the record ID source. Replay uses deterministic IDs so
// that identical input yields identical records.
func (d *Dispatcher) WithIDFunc(newID func() string) *Dispatcher {
	if newID != nil {
		d.newID = newID
	}
	return d
}

func (d *Dispatcher) Mode() Mode { return d.mode }

// Dispatch executes an approved signal and returns the trade record for the
// tick. The returned error is non-nil only for live failures, mirrored in
// the record's FAILED status.
func (d *Dispatcher) Dispatch(ctx context.Context, sig *models.TradeSignal, game models.GameState, market models.MarketState) (models.TradeRecord, error) {
	rec := models.TradeRecord{
		ID:        d.newID(),
		Timestamp: d.now(),
		EventID:   game.EventID,
		Sport:     game.Sport,
		Matchup:   game.Matchup(),
		Strategy:  sig.Strategy,
		Signal:    *sig,
		Simulated: d.mode != ModeLive,
	}

	if d.mode != ModeLive {
		rec.Status = models.TradeStatusExecuted
		rec.FillPrice = simulatedFill(sig, market)
		return rec, nil
	}

	order, err := d.placeWithRetry(ctx, buildOrderRequest(sig))
	if err != nil {
		rec.Status = models.TradeStatusFailed
		rec.Error = err.Error()
		return rec, err
	}

	rec.Status = models.TradeStatusExecuted
	rec.FillPrice = fillPriceFromOrder(sig, order, market)
	return rec, nil
}

func (d *Dispatcher) placeWithRetry(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= d.retries; attempt++ {
		order, err := d.exec.CreateOrder(ctx, req)
		if err != nil {
			lastErr = err
			d.logger.WithError(err).WithFields(logrus.Fields{
				"ticker":  req.Ticker,
				"attempt": attempt,
			}).Warn("Order placement failed")
			continue
		}

		switch order.Status {
		case models.OrderStatusPending, models.OrderStatusOpen, models.OrderStatusFilled:
			return order, nil
		default:
			lastErr = fmt.Errorf("order %s returned status %q", order.OrderID, order.Status)
		}
	}
	return models.Order{}, &DispatchError{Attempts: d.retries, Err: lastErr}
}

func buildOrderRequest(sig *models.TradeSignal) models.OrderRequest {
	req := models.OrderRequest{
		Ticker: sig.Ticker,
		Side:   sig.Side,
		Action: sig.Action(),
		Type:   models.OrderTypeMarket,
		Count:  sig.Size,
	}
	if sig.Price > 0 {
		req.Type = models.OrderTypeLimit
		if sig.Side == models.OrderSideYes {
			req.YesPrice = sig.Price
		} else {
			req.NoPrice = sig.Price
		}
	}
	return req
}

// simulatedFill picks the prevailing market price or the signal's limit,
// whichever is more conservative: the higher cost for buys, the lower
// proceeds for sells. This keeps backtest fills pessimistic.
func simulatedFill(sig *models.TradeSignal, market models.MarketState) int {
	var prevailing int
	if sig.Action() == models.OrderActionBuy {
		prevailing = market.BestAsk(sig.Side)
		if sig.Price > 0 && sig.Price > prevailing {
			prevailing = sig.Price
		}
	} else {
		prevailing = market.BestBid(sig.Side)
		if sig.Price > 0 && sig.Price < prevailing {
			prevailing = sig.Price
		}
	}
	return clampCents(prevailing)
}

func fillPriceFromOrder(sig *models.TradeSignal, order models.Order, market models.MarketState) int {
	if sig.Side == models.OrderSideYes && order.YesPrice > 0 {
		return order.YesPrice
	}
	if sig.Side == models.OrderSideNo && order.NoPrice > 0 {
		return order.NoPrice
	}
	if sig.Price > 0 {
		return sig.Price
	}
	return market.BestAsk(sig.Side)
}

func clampCents(p int) int {
	if p < 1 {
		return 1
	}
	if p > 99 {
		return 99
	}
	return p
}
