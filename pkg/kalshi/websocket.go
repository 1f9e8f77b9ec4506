package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	productionWSURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"
	sandboxWSURL    = "wss://demo-api.kalshi.co/trade-api/ws/v2"
)

// TickerUpdate is one price update from the ticker channel.
type TickerUpdate struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Price        int    `json:"price"`
	Volume       int    `json:"volume"`
}

type TickerHandler func(update TickerUpdate)

// WebSocketClient streams market price updates over the Kalshi websocket.
// It is an optional fast path on top of REST polling: the market cache is
// refreshed between polls when the stream is connected.
type WebSocketClient struct {
	url            string
	signer         *Signer
	conn           *websocket.Conn
	mu             sync.Mutex
	connected      bool
	subscriptions  map[string]bool
	handler        TickerHandler
	reconnectDelay time.Duration
	maxReconnects  int
	logger         *logrus.Logger
}

type wsCommand struct {
	ID     int      `json:"id"`
	Cmd    string   `json:"cmd"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type wsMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

func NewWebSocketClient(signer *Signer, sandbox bool, reconnectDelay time.Duration, maxReconnects int, logger *logrus.Logger) *WebSocketClient {
	url := productionWSURL
	if sandbox {
		url = sandboxWSURL
	}
	return &WebSocketClient{
		url:            url,
		signer:         signer,
		subscriptions:  make(map[string]bool),
		reconnectDelay: reconnectDelay,
		maxReconnects:  maxReconnects,
		logger:         logger,
	}
}

func (ws *WebSocketClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.connected {
		return nil
	}

	header := http.Header{}
	if ws.signer != nil {
		timestamp, signature, err := ws.signer.headerValues("GET", "/trade-api/ws/v2")
		if err != nil {
			return err
		}
		header.Set("KALSHI-ACCESS-KEY", ws.signer.keyID)
		header.Set("KALSHI-ACCESS-SIGNATURE", signature)
		header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, ws.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	ws.conn = conn
	ws.connected = true

	go ws.readLoop(ctx)
	go ws.keepAlive(ctx)

	return nil
}

// Subscribe joins the ticker channel for the given markets.
func (ws *WebSocketClient) Subscribe(tickers []string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.connected {
		return fmt.Errorf("websocket not connected")
	}

	cmd := wsCommand{
		ID:  1,
		Cmd: "subscribe",
		Params: wsParams{
			Channels:      []string{"ticker"},
			MarketTickers: tickers,
		},
	}
	for _, t := range tickers {
		ws.subscriptions[t] = true
	}

	return ws.conn.WriteJSON(cmd)
}

func (ws *WebSocketClient) OnTicker(handler TickerHandler) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.handler = handler
}

func (ws *WebSocketClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg wsMessage
			err := ws.conn.ReadJSON(&msg)
			if err != nil {
				ws.logger.WithError(err).Error("Failed to read websocket message")
				ws.handleDisconnect(ctx)
				return
			}

			if msg.Type != "ticker" {
				continue
			}
			var update TickerUpdate
			if err := json.Unmarshal(msg.Msg, &update); err != nil {
				ws.logger.WithError(err).Debug("Unparseable ticker update")
				continue
			}
			ws.mu.Lock()
			handler := ws.handler
			ws.mu.Unlock()
			if handler != nil {
				handler(update)
			}
		}
	}
}

func (ws *WebSocketClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.mu.Lock()
			if ws.connected {
				if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					ws.logger.WithError(err).Error("Failed to send ping")
					ws.mu.Unlock()
					ws.handleDisconnect(ctx)
					continue
				}
			}
			ws.mu.Unlock()
		}
	}
}

// handleDisconnect closes the connection and retries up to maxReconnects,
// resubscribing to the previous markets on success.
func (ws *WebSocketClient) handleDisconnect(ctx context.Context) {
	ws.mu.Lock()
	ws.connected = false
	if ws.conn != nil {
		ws.conn.Close()
	}
	tickers := make([]string, 0, len(ws.subscriptions))
	for t := range ws.subscriptions {
		tickers = append(tickers, t)
	}
	ws.mu.Unlock()

	for attempt := 1; attempt <= ws.maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(ws.reconnectDelay):
		}

		ws.logger.WithField("attempt", attempt).Info("Reconnecting websocket")
		if err := ws.Connect(ctx); err != nil {
			ws.logger.WithError(err).Warn("Reconnect failed")
			continue
		}
		if len(tickers) > 0 {
			if err := ws.Subscribe(tickers); err != nil {
				ws.logger.WithError(err).Warn("Resubscribe failed")
			}
		}
		return
	}
	ws.logger.Error("Websocket reconnect attempts exhausted")
}
