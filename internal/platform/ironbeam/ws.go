package ironbeam

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trademgr/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// maxReconnectAttempts bounds one reconnect cycle. When exhausted the
	// stream parks in DISCONNECTED rather than retrying forever.
	maxReconnectAttempts = 10
)

// WSClient is the live quote stream. Each connection attaches to a fresh
// server-side stream allocated through the REST client, and previously
// subscribed symbols are replayed after every reconnect. It implements
// domain.QuoteStream.
type WSClient struct {
	rest *Client
	conn *websocket.Conn

	mu    sync.RWMutex
	state domain.StreamState

	// Symbols to restore on reconnect.
	subscriptions map[string]struct{}

	handlers  []domain.QuoteHandler
	handlerMu sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a stream client over an authenticated REST client.
func NewWSClient(rest *Client) *WSClient {
	return &WSClient{
		rest:          rest,
		state:         domain.StreamDisconnected,
		subscriptions: make(map[string]struct{}),
		done:          make(chan struct{}),
	}
}

// State returns the current connection state.
func (w *WSClient) State() domain.StreamState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *WSClient) setState(s domain.StreamState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Connect allocates a stream, dials it, and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state == domain.StreamClosed {
		w.mu.Unlock()
		return fmt.Errorf("ironbeam/ws: %w", domain.ErrStreamClosed)
	}
	if w.state == domain.StreamDisconnected {
		w.state = domain.StreamConnecting
	}
	w.mu.Unlock()

	wsURL, err := w.rest.CreateStream(ctx)
	if err != nil {
		w.setState(domain.StreamDisconnected)
		return fmt.Errorf("ironbeam/ws: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		w.setState(domain.StreamDisconnected)
		return fmt.Errorf("ironbeam/ws: connect: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.state = domain.StreamConnected

	// Keep-alive via pong deadline extension.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Replay subscriptions onto the fresh stream.
	symbols := make([]string, 0, len(w.subscriptions))
	for sym := range w.subscriptions {
		symbols = append(symbols, sym)
	}
	if len(symbols) > 0 {
		if err := w.sendSubscribe(symbols); err != nil {
			// Release the dialed conn: a half-set-up stream must not be left
			// open, and the state must reflect that no connection exists.
			w.conn = nil
			w.state = domain.StreamDisconnected
			w.mu.Unlock()
			conn.Close()
			return fmt.Errorf("ironbeam/ws: restore subscriptions: %w", err)
		}
	}
	w.mu.Unlock()

	go w.readLoop(conn)
	go w.pingLoop(conn)

	return nil
}

// SubscribeQuotes subscribes to quote ticks for the given symbols. The set is
// remembered and replayed after reconnects.
func (w *WSClient) SubscribeQuotes(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil || w.state != domain.StreamConnected {
		return fmt.Errorf("ironbeam/ws: not connected")
	}
	if err := w.sendSubscribe(symbols); err != nil {
		return fmt.Errorf("ironbeam/ws: subscribe: %w", err)
	}
	for _, sym := range symbols {
		w.subscriptions[sym] = struct{}{}
	}
	return nil
}

// OnQuote registers a handler called for every quote tick.
func (w *WSClient) OnQuote(h domain.QuoteHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Close shuts down the connection. The stream cannot be reused afterwards.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == domain.StreamClosed {
		return nil
	}
	w.state = domain.StreamClosed
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendSubscribe writes one subscription command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(symbols []string) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(wsSubscribe{Type: "subscribeQuotes", Symbols: symbols})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages from one connection and dispatches quote ticks.
// On read failure it hands off to reconnect and exits; a successful reconnect
// starts a new readLoop over the new connection.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep one connection alive.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one stream message and dispatches quote ticks.
// Non-quote and unparseable messages are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "q" {
		return
	}

	var q wsQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return
	}

	price, ok := domain.Quote{Symbol: q.Symbol, Last: q.Last, Bid: q.Bid, Ask: q.Ask}.Price()
	if !ok {
		return
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	ts := time.Now().UTC()
	for _, h := range handlers {
		h(q.Symbol, price, ts)
	}
}

// reconnect re-establishes the connection with exponential backoff, allocating
// a fresh stream each attempt. After maxReconnectAttempts failures the client
// parks in DISCONNECTED.
func (w *WSClient) reconnect() {
	w.mu.Lock()
	if w.state == domain.StreamClosed {
		w.mu.Unlock()
		return
	}
	w.state = domain.StreamReconnecting
	w.mu.Unlock()

	delay := reconnectDelay
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		w.mu.Lock()
		if w.state != domain.StreamClosed {
			w.state = domain.StreamReconnecting
		}
		w.mu.Unlock()

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}

	w.setState(domain.StreamDisconnected)
}
