package storage

import (
	"context"
	"time"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

// Store is the narrow persistence interface the core depends on. Sinks are
// append-only; the only read paths are replay input, risk rehydration for
// the current trading day, and reporting queries.
type Store interface {
	SaveGameState(ctx context.Context, g models.GameState) error
	SaveMarketState(ctx context.Context, eventID string, m models.MarketState) error
	SaveSignal(ctx context.Context, sig models.TradeSignal, executed bool) error
	SaveTradeRecord(ctx context.Context, rec models.TradeRecord) error

	// Snapshots returns historical state pairs ordered by timestamp, the
	// replay driver's input.
	Snapshots(ctx context.Context, f SnapshotFilter) ([]models.Snapshot, error)

	// TradesOn returns the trade records of one trading day, used to reseed
	// risk state after a restart.
	TradesOn(ctx context.Context, day time.Time) ([]models.TradeRecord, error)

	RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error)
	DailySummary(ctx context.Context, day time.Time) (DailySummary, error)

	Close() error
}

// SnapshotFilter narrows replay input by date range and sport. Zero values
// disable a dimension.
type SnapshotFilter struct {
	Start time.Time
	End   time.Time
	Sport models.Sport
}

// DailySummary aggregates one trading day's pipeline outcomes.
type DailySummary struct {
	Day      string `json:"day"`
	Trades   int    `json:"trades"`
	Executed int    `json:"executed"`
	Rejected int    `json:"rejected"`
	Failed   int    `json:"failed"`
	PnL      int    `json:"pnl"`
}
