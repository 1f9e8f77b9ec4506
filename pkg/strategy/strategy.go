package strategy

import (
	"fmt"
	"time"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

type PriceType string

const (
	PriceTypeMarket PriceType = "market"
	PriceTypeLimit  PriceType = "limit"
)

// TradeTemplate fixes the shape of the order a strategy proposes when its
// condition tree fires.
type TradeTemplate struct {
	Side        models.OrderSide   `mapstructure:"side"`
	Action      models.OrderAction `mapstructure:"action"`
	Size        int                `mapstructure:"size"`
	PriceType   PriceType          `mapstructure:"price_type"`
	LimitOffset int                `mapstructure:"limit_offset"`
}

// RiskOverrides narrows the global risk limits for a single strategy.
// Zero fields inherit the global value.
type RiskOverrides struct {
	MaxPosition          int `mapstructure:"max_position"`
	MaxExposurePerMarket int `mapstructure:"max_exposure_per_market"`
}

// Config is the declarative definition of one strategy, loaded once at
// startup and read-only for the lifetime of a run.
type Config struct {
	Name        string         `mapstructure:"name"`
	Enabled     bool           `mapstructure:"enabled"`
	Sports      []models.Sport `mapstructure:"sports"`
	TrackedSide TrackedSide    `mapstructure:"tracked_side"`
	Conditions  Node           `mapstructure:"conditions"`
	Trade       TradeTemplate  `mapstructure:"trade"`
	Risk        *RiskOverrides `mapstructure:"risk"`
}

// Validate performs the full structural check once at load. A strategy that
// fails validation never enters the active set.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	switch c.TrackedSide {
	case TrackedHome, TrackedAway:
	case "":
		return fmt.Errorf("tracked_side is required (home or away)")
	default:
		return fmt.Errorf("tracked_side must be %q or %q, got %q", TrackedHome, TrackedAway, c.TrackedSide)
	}
	switch c.Trade.Side {
	case models.OrderSideYes, models.OrderSideNo:
	default:
		return fmt.Errorf("trade.side must be %q or %q, got %q", models.OrderSideYes, models.OrderSideNo, c.Trade.Side)
	}
	switch c.Trade.Action {
	case models.OrderActionBuy, models.OrderActionSell:
	default:
		return fmt.Errorf("trade.action must be %q or %q, got %q", models.OrderActionBuy, models.OrderActionSell, c.Trade.Action)
	}
	if c.Trade.Size < 1 {
		return fmt.Errorf("trade.size must be a positive integer, got %d", c.Trade.Size)
	}
	switch c.Trade.PriceType {
	case PriceTypeMarket, PriceTypeLimit:
	default:
		return fmt.Errorf("trade.price_type must be %q or %q, got %q", PriceTypeMarket, PriceTypeLimit, c.Trade.PriceType)
	}
	if c.Trade.LimitOffset < 0 {
		return fmt.Errorf("trade.limit_offset must be non-negative, got %d", c.Trade.LimitOffset)
	}
	if c.Risk != nil {
		if c.Risk.MaxPosition < 0 {
			return fmt.Errorf("risk.max_position must be non-negative, got %d", c.Risk.MaxPosition)
		}
		if c.Risk.MaxExposurePerMarket < 0 {
			return fmt.Errorf("risk.max_exposure_per_market must be non-negative, got %d", c.Risk.MaxExposurePerMarket)
		}
	}
	if err := Validate(&c.Conditions); err != nil {
		return fmt.Errorf("conditions: %w", err)
	}
	return nil
}

// Strategy binds a validated condition tree to a trade template. Evaluation
// is deterministic: the same state triple always yields the same signal, so
// the identical logic serves live trading and backtesting.
type Strategy struct {
	cfg Config
	now func() time.Time
}

// New validates the config and returns a ready strategy.
func New(cfg Config) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %q: %w", cfg.Name, err)
	}
	return &Strategy{cfg: cfg, now: time.Now}, nil
}

func (s *Strategy) Name() string { return s.cfg.Name }

func (s *Strategy) Config() Config { return s.cfg }

func (s *Strategy) Overrides() *RiskOverrides { return s.cfg.Risk }

// AppliesTo reports whether the strategy's sport filter matches. An empty
// filter matches every sport.
func (s *Strategy) AppliesTo(sport models.Sport) bool {
	if len(s.cfg.Sports) == 0 {
		return true
	}
	for _, sp := range s.cfg.Sports {
		if sp == sport {
			return true
		}
	}
	return false
}

// Evaluate produces at most one signal for the state triple. Nil means no
// trade: game not live, market not open, sport filtered out, or the root
// condition evaluated false.
func (s *Strategy) Evaluate(game models.GameState, market models.MarketState, position *models.Position) *models.TradeSignal {
	if !game.IsLive() {
		return nil
	}
	if !market.IsOpen() {
		return nil
	}
	if !s.AppliesTo(game.Sport) {
		return nil
	}

	ctx := EvalContext{Game: game, Market: market, Position: position, Tracked: s.cfg.TrackedSide}
	if !Eval(&s.cfg.Conditions, ctx) {
		return nil
	}

	return &models.TradeSignal{
		Signal:    models.Signal(s.cfg.Trade.Action),
		Ticker:    market.Ticker,
		Side:      s.cfg.Trade.Side,
		Size:      s.cfg.Trade.Size,
		Price:     s.resolvePrice(market),
		Reason:    Explain(&s.cfg.Conditions, ctx),
		Strategy:  s.cfg.Name,
		CreatedAt: s.now(),
	}
}

// resolvePrice applies the template's price policy: market orders carry no
// price, limit orders cross the best opposing quote by limit_offset cents.
func (s *Strategy) resolvePrice(market models.MarketState) int {
	if s.cfg.Trade.PriceType == PriceTypeMarket {
		return 0
	}
	var price int
	if s.cfg.Trade.Action == models.OrderActionBuy {
		price = market.BestAsk(s.cfg.Trade.Side) + s.cfg.Trade.LimitOffset
	} else {
		price = market.BestBid(s.cfg.Trade.Side) - s.cfg.Trade.LimitOffset
	}
	return clampPrice(price)
}

// Binary contract prices trade between 1 and 99 cents.
func clampPrice(p int) int {
	if p < 1 {
		return 1
	}
	if p > 99 {
		return 99
	}
	return p
}
