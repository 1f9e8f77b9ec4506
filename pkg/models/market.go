package models

import "time"

type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// MarketState is an immutable snapshot of a binary-outcome market at one
// poll tick. All prices are in cents (1-99).
type MarketState struct {
	Ticker       string
	EventTicker  string
	YesBid       int
	YesAsk       int
	NoBid        int
	NoAsk        int
	LastPrice    int
	Volume       int
	OpenInterest int
	Status       MarketStatus
	CapturedAt   time.Time
}

func (m MarketState) IsOpen() bool {
	return m.Status == MarketStatusOpen
}

// BestAsk returns the best ask for the given contract side.
func (m MarketState) BestAsk(side OrderSide) int {
	if side == OrderSideNo {
		return m.NoAsk
	}
	return m.YesAsk
}

// BestBid returns the best bid for the given contract side.
func (m MarketState) BestBid(side OrderSide) int {
	if side == OrderSideNo {
		return m.NoBid
	}
	return m.YesBid
}

// Snapshot pairs a game state with the market state captured on the same
// poll tick. Market may be nil when no market was tracked for the event;
// replay synthesizes one from the score margin in that case.
type Snapshot struct {
	Timestamp time.Time
	Game      GameState
	Market    *MarketState
}
