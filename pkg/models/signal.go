package models

import "time"

type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// TradeSignal is a proposed trade directive produced by a strategy, before
// risk review. Produced fresh on each evaluation; only the risk manager may
// replace it with a reduced copy.
type TradeSignal struct {
	Signal    Signal
	Ticker    string
	Side      OrderSide
	Size      int
	Price     int // limit price in cents; 0 means market order
	Reason    string
	Strategy  string
	CreatedAt time.Time
}

// IsActionable reports whether the signal should enter risk review.
func (s *TradeSignal) IsActionable() bool {
	return s != nil && s.Signal != SignalHold && s.Size > 0
}

func (s *TradeSignal) Action() OrderAction {
	if s.Signal == SignalSell {
		return OrderActionSell
	}
	return OrderActionBuy
}

// SignedSize is the position delta this signal would apply if filled:
// buys add contracts, sells remove them.
func (s *TradeSignal) SignedSize() int {
	if s.Signal == SignalSell {
		return -s.Size
	}
	return s.Size
}
