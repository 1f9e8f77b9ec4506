package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoreline-trading/scoreline/internal/storage"
	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

type sliceSource struct {
	snapshots []models.Snapshot
}

func (s *sliceSource) Snapshots(ctx context.Context, f storage.SnapshotFilter) ([]models.Snapshot, error) {
	return s.snapshots, nil
}

func snap(eventID string, at time.Time, home, away, period int, status models.GameStatus) models.Snapshot {
	return models.Snapshot{
		Timestamp: at,
		Game: models.GameState{
			EventID:      eventID,
			Sport:        models.SportNFL,
			HomeTeam:     models.Team{Abbreviation: "HOM"},
			AwayTeam:     models.Team{Abbreviation: "AWY"},
			HomeScore:    home,
			AwayScore:    away,
			Period:       period,
			ClockSeconds: 600,
			Status:       status,
			CapturedAt:   at,
		},
	}
}

func replayBase() time.Time {
	return time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
}

// Event where the home team leads by 10 and goes on to win.
func winningEvent(id string, base time.Time) []models.Snapshot {
	return []models.Snapshot{
		snap(id, base, 0, 0, 1, models.GameStatusPre),
		snap(id, base.Add(10*time.Minute), 7, 3, 2, models.GameStatusIn),
		snap(id, base.Add(20*time.Minute), 17, 7, 3, models.GameStatusIn),
		snap(id, base.Add(40*time.Minute), 27, 14, 4, models.GameStatusPost),
	}
}

// Event where the home team leads by 8 mid-game but loses.
func losingEvent(id string, base time.Time) []models.Snapshot {
	return []models.Snapshot{
		snap(id, base, 0, 0, 1, models.GameStatusPre),
		snap(id, base.Add(10*time.Minute), 14, 6, 2, models.GameStatusIn),
		snap(id, base.Add(40*time.Minute), 20, 28, 4, models.GameStatusPost),
	}
}

func TestReplayExecutesAndSettles(t *testing.T) {
	base := replayBase()
	source := &sliceSource{snapshots: winningEvent("1001", base)}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())

	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalSignals)
	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 1, result.Wins)
	assert.Equal(t, 0, result.Losses)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, models.TradeStatusExecuted, rec.Status)
	assert.True(t, rec.Simulated)
	// Margin 10 synthesizes a yes ask of 80; the win pays 100.
	assert.Equal(t, 80, rec.FillPrice)
	assert.Equal(t, 200, rec.PnL)
	assert.Equal(t, 200, result.TotalPnL)
}

func TestReplayLosingTrade(t *testing.T) {
	base := replayBase()
	source := &sliceSource{snapshots: losingEvent("2002", base)}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())

	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Losses)
	require.Len(t, result.Records, 1)
	// Margin 8 synthesizes a yes ask of 74; the loss forfeits the entry.
	assert.Equal(t, 74, result.Records[0].FillPrice)
	assert.Equal(t, -740, result.Records[0].PnL)
}

func TestReplayFiresOncePerEventPerStrategy(t *testing.T) {
	base := replayBase()
	// Margin stays above the threshold across several live snapshots.
	snapshots := []models.Snapshot{
		snap("3003", base, 14, 0, 2, models.GameStatusIn),
		snap("3003", base.Add(5*time.Minute), 17, 0, 2, models.GameStatusIn),
		snap("3003", base.Add(10*time.Minute), 21, 0, 3, models.GameStatusIn),
		snap("3003", base.Add(30*time.Minute), 28, 7, 4, models.GameStatusPost),
	}
	source := &sliceSource{snapshots: snapshots}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())

	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTrades, "one position per event, no pyramiding")
}

func TestReplayDailyLossGateRespectsChronology(t *testing.T) {
	base := replayBase()
	limits := risk.DefaultLimits()
	limits.MaxDailyLoss = 500

	// The losing event settles at base+40m for -740; the second event's
	// signal fires after that, so the gate must reject it.
	var snapshots []models.Snapshot
	snapshots = append(snapshots, losingEvent("4001", base)...)
	snapshots = append(snapshots, winningEvent("4002", base.Add(time.Hour))...)
	source := &sliceSource{snapshots: snapshots}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, limits, testLogger())

	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, models.TradeStatusExecuted, result.Records[0].Status)
	assert.Equal(t, models.TradeStatusRejected, result.Records[1].Status)
	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 2, result.TotalSignals)
}

func TestReplayUnfinishedEventLeavesTradeUnsettled(t *testing.T) {
	base := replayBase()
	snapshots := []models.Snapshot{
		snap("5005", base, 17, 7, 3, models.GameStatusIn),
		snap("5005", base.Add(5*time.Minute), 20, 7, 3, models.GameStatusIn),
	}
	source := &sliceSource{snapshots: snapshots}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())

	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 0, result.Wins)
	assert.Equal(t, 0, result.Losses)
	assert.Equal(t, 0, result.TotalPnL)
}

func TestReplayRecordedMarketOverridesSynthetic(t *testing.T) {
	base := replayBase()
	snapshots := winningEvent("6006", base)
	market := models.MarketState{
		Ticker: "KXNFLGAME-HOM",
		YesBid: 60,
		YesAsk: 62,
		NoBid:  36,
		NoAsk:  38,
		Status: models.MarketStatusOpen,
	}
	snapshots[2].Market = &market

	source := &sliceSource{snapshots: snapshots}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())

	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "KXNFLGAME-HOM", result.Records[0].Signal.Ticker)
	assert.Equal(t, 62, result.Records[0].FillPrice)
}

func TestReplayIsDeterministic(t *testing.T) {
	base := replayBase()
	var snapshots []models.Snapshot
	snapshots = append(snapshots, winningEvent("7001", base)...)
	snapshots = append(snapshots, losingEvent("7002", base.Add(2*time.Minute))...)
	snapshots = append(snapshots, winningEvent("7003", base.Add(4*time.Minute))...)
	source := &sliceSource{snapshots: snapshots}

	run := func() *Result {
		r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())
		result, err := r.Run(context.Background(), ReplayOptions{}, nil)
		require.NoError(t, err)
		return result
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Records, run().Records)
		assert.Equal(t, first.TotalPnL, run().TotalPnL)
	}
}

func TestReplayHandlerSeesRecordsInOrder(t *testing.T) {
	base := replayBase()
	var snapshots []models.Snapshot
	snapshots = append(snapshots, winningEvent("8001", base.Add(time.Minute))...)
	snapshots = append(snapshots, winningEvent("8002", base)...)
	source := &sliceSource{snapshots: snapshots}
	r := NewReplayer(source, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())

	var seen []string
	_, err := r.Run(context.Background(), ReplayOptions{}, func(rec models.TradeRecord) error {
		seen = append(seen, rec.EventID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"8002", "8001"}, seen, "records arrive in chronological order, not input order")
}

func TestReplayEmptyRange(t *testing.T) {
	r := NewReplayer(&sliceSource{}, []*strategy.Strategy{leadStrategy(t)}, risk.DefaultLimits(), testLogger())
	result, err := r.Run(context.Background(), ReplayOptions{}, nil)
	require.NoError(t, err)
	assert.Zero(t, result.TotalSignals)
	assert.Empty(t, result.Records)
}
