package models

import "time"

// TradeStatus is the terminal state of one decision-pipeline tick.
type TradeStatus string

const (
	TradeStatusExecuted TradeStatus = "executed"
	TradeStatusRejected TradeStatus = "rejected"
	TradeStatusFailed   TradeStatus = "failed"
)

// TradeRecord is the append-only outcome of a dispatch. Exactly one record
// is produced per tick per strategy-market pair that yielded a signal.
type TradeRecord struct {
	ID        string
	Timestamp time.Time
	EventID   string
	Sport     Sport
	Matchup   string
	Strategy  string
	Signal    TradeSignal
	Status    TradeStatus
	FillPrice int // cents; 0 when nothing filled
	PnL       int // realized P&L in cents, set on settlement
	Simulated bool
	Error     string
}
