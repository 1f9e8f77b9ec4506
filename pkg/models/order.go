package models

import "time"

type OrderSide string

const (
	OrderSideYes OrderSide = "yes"
	OrderSideNo  OrderSide = "no"
)

type OrderAction string

const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusExpired  OrderStatus = "expired"
)

type Order struct {
	OrderID        string
	Ticker         string
	Status         OrderStatus
	Side           OrderSide
	Action         OrderAction
	Type           OrderType
	Count          int
	RemainingCount int
	YesPrice       int
	NoPrice        int
	CreatedAt      time.Time
}

// OrderRequest is the order placement payload sent to the execution venue.
// Price fields are in cents; zero means not applicable.
type OrderRequest struct {
	Ticker   string
	Side     OrderSide
	Action   OrderAction
	Type     OrderType
	Count    int
	YesPrice int
	NoPrice  int
}

// Position is an open position in a single market. Count is signed:
// positive means long the YES side.
type Position struct {
	Ticker         string
	Count          int
	MarketExposure int
	RealizedPnL    int
	UpdatedAt      time.Time
}
