package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/internal/storage"
	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

// SnapshotSource yields historical state pairs ordered by timestamp.
type SnapshotSource interface {
	Snapshots(ctx context.Context, f storage.SnapshotFilter) ([]models.Snapshot, error)
}

// ReplayOptions filters the snapshot range before replay.
type ReplayOptions struct {
	Start time.Time
	End   time.Time
	Sport models.Sport
}

// Result aggregates one replay run.
type Result struct {
	Start        time.Time
	End          time.Time
	Strategies   []string
	TotalSignals int
	TotalTrades  int
	Wins         int
	Losses       int
	TotalPnL     int // cents
	Records      []models.TradeRecord
}

func (r *Result) WinRate() float64 {
	settled := r.Wins + r.Losses
	if settled == 0 {
		return 0
	}
	return float64(r.Wins) / float64(settled)
}

func (r *Result) Summary() string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "BACKTEST RESULTS")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Period: %s to %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "Strategies: %s\n", strings.Join(r.Strategies, ", "))
	fmt.Fprintln(&b, strings.Repeat("-", 60))
	fmt.Fprintf(&b, "Total Signals: %d\n", r.TotalSignals)
	fmt.Fprintf(&b, "Total Trades: %d\n", r.TotalTrades)
	fmt.Fprintf(&b, "Winning Trades: %d\n", r.Wins)
	fmt.Fprintf(&b, "Losing Trades: %d\n", r.Losses)
	fmt.Fprintf(&b, "Win Rate: %.1f%%\n", r.WinRate()*100)
	fmt.Fprintf(&b, "Total P&L: $%.2f\n", float64(r.TotalPnL)/100)
	fmt.Fprintln(&b, line)
	return b.String()
}

// Replayer feeds historical snapshots through the same decision pipeline
// used live. Candidate signals are evaluated in parallel per event (pure,
// stateless), then risk review and risk-state mutation run in a single
// serialized pass in true chronological order, so the loss-limit gate
// behaves exactly as it would have live.
//
// A run is deterministic: the same snapshot sequence always yields the same
// record sequence. Runs are restartable from the beginning; there is no
// mid-stream checkpointing.
type Replayer struct {
	source     SnapshotSource
	strategies []*strategy.Strategy
	limits     risk.Limits
	logger     *logrus.Logger
}

func NewReplayer(source SnapshotSource, strategies []*strategy.Strategy, limits risk.Limits, logger *logrus.Logger) *Replayer {
	return &Replayer{
		source:     source,
		strategies: strategies,
		limits:     limits,
		logger:     logger,
	}
}

// candidate is a signal produced in the parallel evaluation phase, waiting
// for serialized risk review.
type candidate struct {
	ts       time.Time
	eventID  string
	game     models.GameState
	market   models.MarketState
	strat    *strategy.Strategy
	sig      *models.TradeSignal
	finalTS  time.Time
	homeWon  bool
	hasFinal bool
}

// settlement marks an executed simulated trade to its final value at the
// event's last snapshot time.
type settlement struct {
	ts  time.Time
	pnl int
}

// Run replays the filtered snapshot range, invoking handler for each trade
// record in order. The handler may be nil.
func (r *Replayer) Run(ctx context.Context, opts ReplayOptions, handler func(models.TradeRecord) error) (*Result, error) {
	snapshots, err := r.source.Snapshots(ctx, storage.SnapshotFilter{
		Start: opts.Start,
		End:   opts.End,
		Sport: opts.Sport,
	})
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	result := &Result{Start: opts.Start, End: opts.End}
	for _, strat := range r.strategies {
		result.Strategies = append(result.Strategies, strat.Name())
	}
	if len(snapshots) == 0 {
		r.logger.Warn("No historical data found for replay")
		return result, nil
	}
	if result.Start.IsZero() {
		result.Start = snapshots[0].Timestamp
	}
	if result.End.IsZero() {
		result.End = snapshots[len(snapshots)-1].Timestamp
	}

	events, order := groupByEvent(snapshots)

	// Phase 1: evaluate candidates per event in parallel. Evaluation is
	// pure, so only result placement needs coordination.
	perEvent := make([][]candidate, len(order))
	var wg sync.WaitGroup
	for i, eventID := range order {
		wg.Add(1)
		go func(i int, snaps []models.Snapshot) {
			defer wg.Done()
			perEvent[i] = r.evaluateEvent(snaps)
		}(i, events[eventID])
	}
	wg.Wait()

	var candidates []candidate
	for _, list := range perEvent {
		candidates = append(candidates, list...)
	}
	// True chronological order across events, with a stable tiebreak so
	// replays are reproducible.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.ts.Equal(b.ts) {
			return a.ts.Before(b.ts)
		}
		if a.eventID != b.eventID {
			return a.eventID < b.eventID
		}
		return a.strat.Name() < b.strat.Name()
	})

	// Phase 2: serialized risk pass. A manual clock driven by snapshot
	// timestamps gives the risk manager historical day boundaries.
	var clock time.Time
	manager := risk.NewManager(r.limits, r.logger).WithClock(func() time.Time { return clock })
	dispatcher := NewDispatcher(nil, ModeBacktest, 1, r.logger).
		WithClock(func() time.Time { return clock })
	recordID := func(c candidate) string {
		return fmt.Sprintf("%s-%s-%d", c.strat.Name(), c.eventID, c.ts.Unix())
	}

	var pending []settlement
	for _, c := range candidates {
		// Apply settlements that occurred before this tick, in order, so
		// the daily loss accumulator sees losses when they happened.
		pending = applySettlements(pending, c.ts, manager, &clock)

		clock = c.ts
		result.TotalSignals++

		id := recordID(c)
		dispatcher.WithIDFunc(func() string { return id })

		approved := manager.Review(c.sig, c.strat.Overrides())
		var rec models.TradeRecord
		if approved == nil {
			rec = models.TradeRecord{
				ID:        id,
				Timestamp: c.ts,
				EventID:   c.eventID,
				Sport:     c.game.Sport,
				Matchup:   c.game.Matchup(),
				Strategy:  c.strat.Name(),
				Signal:    *c.sig,
				Status:    models.TradeStatusRejected,
				Simulated: true,
			}
		} else {
			rec, _ = dispatcher.Dispatch(ctx, approved, c.game, c.market)
			manager.RecordFill(approved, rec.FillPrice, 0)
			result.TotalTrades++

			if c.hasFinal {
				pnl := settle(approved, rec.FillPrice, c.homeWon)
				rec.PnL = pnl
				if pnl >= 0 {
					result.Wins++
				} else {
					result.Losses++
				}
				result.TotalPnL += pnl
				pending = append(pending, settlement{ts: c.finalTS, pnl: pnl})
			}
		}

		result.Records = append(result.Records, rec)
		if handler != nil {
			if err := handler(rec); err != nil {
				return result, err
			}
		}
	}
	applySettlements(pending, time.Time{}, manager, &clock)

	return result, nil
}

// applySettlements applies every pending settlement at or before cutoff (a
// zero cutoff flushes all), advancing the manager's clock to each
// settlement time so day rollovers land on the right boundary.
func applySettlements(pending []settlement, cutoff time.Time, manager *risk.Manager, clock *time.Time) []settlement {
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].ts.Before(pending[j].ts) })
	remaining := pending[:0]
	for _, s := range pending {
		if cutoff.IsZero() || !s.ts.After(cutoff) {
			*clock = s.ts
			manager.RecordPnL(s.pnl)
		} else {
			remaining = append(remaining, s)
		}
	}
	return remaining
}

// evaluateEvent walks one event's snapshots in order and collects at most
// one candidate per strategy: once a strategy fires for an event it stays
// fired, matching how a live position would sit rather than pyramid.
func (r *Replayer) evaluateEvent(snaps []models.Snapshot) []candidate {
	var out []candidate
	fired := make(map[string]bool)

	final := snaps[len(snaps)-1]
	hasFinal := final.Game.IsFinal()
	homeWon := final.Game.HomeScore > final.Game.AwayScore

	for _, snap := range snaps {
		if !snap.Game.IsLive() {
			continue
		}
		market := snap.Market
		if market == nil {
			m := syntheticMarket(snap.Game)
			market = &m
		}

		for _, strat := range r.strategies {
			if fired[strat.Name()] {
				continue
			}
			sig := strat.Evaluate(snap.Game, *market, nil)
			if !sig.IsActionable() {
				continue
			}
			// Signals are timestamped with snapshot time, not wall time,
			// so identical runs produce identical records.
			sig.CreatedAt = snap.Timestamp
			fired[strat.Name()] = true
			out = append(out, candidate{
				ts:       snap.Timestamp,
				eventID:  snap.Game.EventID,
				game:     snap.Game,
				market:   *market,
				strat:    strat,
				sig:      sig,
				finalTS:  final.Timestamp,
				homeWon:  homeWon,
				hasFinal: hasFinal,
			})
		}
	}
	return out
}

// settle resolves a simulated binary contract against the final score.
// YES pays out when the home team wins. Winners collect 100 cents per
// contract less the entry; losers forfeit the entry.
func settle(sig *models.TradeSignal, fillPrice int, homeWon bool) int {
	won := homeWon
	if sig.Side == models.OrderSideNo {
		won = !homeWon
	}
	if won {
		return (100 - fillPrice) * sig.Size
	}
	return -fillPrice * sig.Size
}

// syntheticMarket estimates market prices from the score margin when no
// market snapshot was recorded: 50 cents at even, about 3 cents per point,
// clamped to 5-95.
func syntheticMarket(game models.GameState) models.MarketState {
	margin := game.Margin()
	adj := margin
	if adj < 0 {
		adj = -adj
	}
	adj *= 3
	if adj > 40 {
		adj = 40
	}

	yes := 50 + adj
	if margin < 0 {
		yes = 50 - adj
	}
	if yes > 95 {
		yes = 95
	}
	if yes < 5 {
		yes = 5
	}

	return models.MarketState{
		Ticker:      fmt.Sprintf("%s-%s", strings.ToUpper(string(game.Sport)), game.EventID),
		EventTicker: game.EventID,
		YesBid:      yes - 2,
		YesAsk:      yes,
		NoBid:       100 - yes - 2,
		NoAsk:       100 - yes,
		LastPrice:   yes,
		Status:      models.MarketStatusOpen,
		CapturedAt:  game.CapturedAt,
	}
}

// groupByEvent splits snapshots per event, preserving both the per-event
// timestamp order and a deterministic first-seen event order.
func groupByEvent(snapshots []models.Snapshot) (map[string][]models.Snapshot, []string) {
	events := make(map[string][]models.Snapshot)
	var order []string
	for _, snap := range snapshots {
		id := snap.Game.EventID
		if _, seen := events[id]; !seen {
			order = append(order, id)
		}
		events[id] = append(events[id], snap)
	}
	return events, order
}
