package kalshi

import (
	"context"
	"sync"
	"time"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

// MarketSource resolves feed events to venue markets and serves market
// snapshots, preferring websocket updates over REST when the stream is
// connected.
type MarketSource struct {
	client  *Client
	mapping map[string]string // feed event ID -> market ticker

	mu    sync.RWMutex
	cache map[string]models.MarketState // ticker -> latest snapshot
}

func NewMarketSource(client *Client, mapping map[string]string) *MarketSource {
	if mapping == nil {
		mapping = make(map[string]string)
	}
	return &MarketSource{
		client:  client,
		mapping: mapping,
		cache:   make(map[string]models.MarketState),
	}
}

// Tickers lists every mapped market, for websocket subscription.
func (s *MarketSource) Tickers() []string {
	tickers := make([]string, 0, len(s.mapping))
	for _, t := range s.mapping {
		tickers = append(tickers, t)
	}
	return tickers
}

// ApplyTicker folds a websocket price update into the cache. Registered as
// the stream's ticker handler.
func (s *MarketSource) ApplyTicker(update TickerUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.cache[update.MarketTicker]
	if !ok {
		// No REST baseline yet; the next MarketFor call fetches one.
		return
	}
	state.YesBid = update.YesBid
	state.YesAsk = update.YesAsk
	state.NoBid = 100 - update.YesAsk
	state.NoAsk = 100 - update.YesBid
	state.LastPrice = update.Price
	state.Volume = update.Volume
	state.CapturedAt = time.Now()
	s.cache[update.MarketTicker] = state
}

// MarketFor returns the market snapshot for a game, or nil when no market
// is mapped for the event. Cached websocket state younger than the REST
// poll cadence is served without a round trip.
func (s *MarketSource) MarketFor(ctx context.Context, game models.GameState) (*models.MarketState, error) {
	ticker, ok := s.mapping[game.EventID]
	if !ok {
		return nil, nil
	}

	s.mu.RLock()
	cached, hit := s.cache[ticker]
	s.mu.RUnlock()
	if hit && time.Since(cached.CapturedAt) < 10*time.Second {
		state := cached
		return &state, nil
	}
	if s.client == nil {
		// Credential-less mode: websocket cache or nothing.
		if hit {
			state := cached
			return &state, nil
		}
		return nil, nil
	}

	state, err := s.client.Market(ctx, ticker)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[ticker] = state
	s.mu.Unlock()
	return &state, nil
}

// PositionFor fetches the current position in a market, nil when flat.
func (s *MarketSource) PositionFor(ctx context.Context, ticker string) (*models.Position, error) {
	if s.client == nil {
		return nil, nil
	}
	positions, err := s.client.Positions(ctx, ticker)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Ticker == ticker {
			return &positions[i], nil
		}
	}
	return nil, nil
}
