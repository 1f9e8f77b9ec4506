package kalshi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

const (
	productionURL = "https://api.elections.kalshi.com/trade-api/v2"
	sandboxURL    = "https://demo-api.kalshi.co/trade-api/v2"

	// Kalshi allows 10 req/s on the basic tier.
	requestsPerSecond = 10
)

// APIError is a non-2xx response from the exchange.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi API error %d: %s", e.StatusCode, e.Message)
}

// Client is the authenticated REST client for the Kalshi trade API. Sandbox
// and production speak the same protocol; only the base URL and whether
// fills affect real funds differ.
type Client struct {
	http    *resty.Client
	signer  *Signer
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func NewClient(signer *Signer, sandbox bool, logger *logrus.Logger) *Client {
	baseURL := productionURL
	if sandbox {
		baseURL = sandboxURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		http:    client,
		signer:  signer,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  logger,
	}
}

// request sets up a rate-limited, signed request. The signed path is the
// full API path without query parameters.
func (c *Client) request(ctx context.Context, method, path string) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	if c.signer != nil {
		timestamp, signature, err := c.signer.headerValues(method, "/trade-api/v2"+path)
		if err != nil {
			return nil, err
		}
		req.SetHeaders(map[string]string{
			"KALSHI-ACCESS-KEY":       c.signer.keyID,
			"KALSHI-ACCESS-SIGNATURE": signature,
			"KALSHI-ACCESS-TIMESTAMP": timestamp,
		})
	}
	return req, nil
}

type marketPayload struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Status       string `json:"status"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	NoBid        int    `json:"no_bid"`
	NoAsk        int    `json:"no_ask"`
	LastPrice    int    `json:"last_price"`
	Volume       int    `json:"volume"`
	OpenInterest int    `json:"open_interest"`
}

func (p marketPayload) toMarketState(at time.Time) models.MarketState {
	status := models.MarketStatus(p.Status)
	// Kalshi reports "active" for tradeable markets.
	if p.Status == "active" {
		status = models.MarketStatusOpen
	}
	return models.MarketState{
		Ticker:       p.Ticker,
		EventTicker:  p.EventTicker,
		YesBid:       p.YesBid,
		YesAsk:       p.YesAsk,
		NoBid:        p.NoBid,
		NoAsk:        p.NoAsk,
		LastPrice:    p.LastPrice,
		Volume:       p.Volume,
		OpenInterest: p.OpenInterest,
		Status:       status,
		CapturedAt:   at,
	}
}

// Market fetches the current snapshot of one market.
func (c *Client) Market(ctx context.Context, ticker string) (models.MarketState, error) {
	path := "/markets/" + ticker
	req, err := c.request(ctx, "GET", path)
	if err != nil {
		return models.MarketState{}, err
	}

	var body struct {
		Market marketPayload `json:"market"`
	}
	resp, err := req.SetResult(&body).Get(path)
	if err != nil {
		return models.MarketState{}, err
	}
	if resp.IsError() {
		return models.MarketState{}, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return body.Market.toMarketState(time.Now()), nil
}

// Positions fetches open positions, optionally filtered to one ticker.
func (c *Client) Positions(ctx context.Context, ticker string) ([]models.Position, error) {
	path := "/portfolio/positions"
	req, err := c.request(ctx, "GET", path)
	if err != nil {
		return nil, err
	}
	if ticker != "" {
		req.SetQueryParam("ticker", ticker)
	}

	var body struct {
		MarketPositions []struct {
			Ticker         string `json:"ticker"`
			Position       int    `json:"position"`
			MarketExposure int    `json:"market_exposure"`
			RealizedPnL    int    `json:"realized_pnl"`
		} `json:"market_positions"`
	}
	resp, err := req.SetResult(&body).Get(path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}

	positions := make([]models.Position, 0, len(body.MarketPositions))
	for _, p := range body.MarketPositions {
		positions = append(positions, models.Position{
			Ticker:         p.Ticker,
			Count:          p.Position,
			MarketExposure: p.MarketExposure,
			RealizedPnL:    p.RealizedPnL,
			UpdatedAt:      time.Now(),
		})
	}
	return positions, nil
}

// Balance returns the available balance in cents.
func (c *Client) Balance(ctx context.Context) (int, error) {
	path := "/portfolio/balance"
	req, err := c.request(ctx, "GET", path)
	if err != nil {
		return 0, err
	}

	var body struct {
		Balance int `json:"balance"`
	}
	resp, err := req.SetResult(&body).Get(path)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return body.Balance, nil
}

type createOrderPayload struct {
	Ticker   string `json:"ticker"`
	Side     string `json:"side"`
	Action   string `json:"action"`
	Type     string `json:"type"`
	Count    int    `json:"count"`
	YesPrice *int   `json:"yes_price,omitempty"`
	NoPrice  *int   `json:"no_price,omitempty"`
}

// CreateOrder places an order. Limit prices must be 1-99 cents on the side
// of the contract being traded.
func (c *Client) CreateOrder(ctx context.Context, order models.OrderRequest) (models.Order, error) {
	path := "/portfolio/orders"
	req, err := c.request(ctx, "POST", path)
	if err != nil {
		return models.Order{}, err
	}

	payload := createOrderPayload{
		Ticker: order.Ticker,
		Side:   string(order.Side),
		Action: string(order.Action),
		Type:   string(order.Type),
		Count:  order.Count,
	}
	if order.YesPrice > 0 {
		payload.YesPrice = &order.YesPrice
	}
	if order.NoPrice > 0 {
		payload.NoPrice = &order.NoPrice
	}

	var body struct {
		Order struct {
			OrderID        string `json:"order_id"`
			Ticker         string `json:"ticker"`
			Status         string `json:"status"`
			Side           string `json:"side"`
			Action         string `json:"action"`
			Type           string `json:"type"`
			Count          int    `json:"count"`
			RemainingCount int    `json:"remaining_count"`
			YesPrice       int    `json:"yes_price"`
			NoPrice        int    `json:"no_price"`
		} `json:"order"`
	}
	resp, err := req.SetBody(payload).SetResult(&body).Post(path)
	if err != nil {
		return models.Order{}, err
	}
	if resp.IsError() {
		return models.Order{}, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": body.Order.OrderID,
		"ticker":   body.Order.Ticker,
		"status":   body.Order.Status,
	}).Info("Order placed")

	return models.Order{
		OrderID:        body.Order.OrderID,
		Ticker:         body.Order.Ticker,
		Status:         models.OrderStatus(body.Order.Status),
		Side:           models.OrderSide(body.Order.Side),
		Action:         models.OrderAction(body.Order.Action),
		Type:           models.OrderType(body.Order.Type),
		Count:          body.Order.Count,
		RemainingCount: body.Order.RemainingCount,
		YesPrice:       body.Order.YesPrice,
		NoPrice:        body.Order.NoPrice,
		CreatedAt:      time.Now(),
	}, nil
}
