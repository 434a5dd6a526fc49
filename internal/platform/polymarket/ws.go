package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for the next pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// BookHandler receives every full orderbook snapshot frame.
type BookHandler func(domain.OrderbookSnapshot)

// PriceChangeHandler receives every incremental level update frame.
type PriceChangeHandler func(domain.PriceChange)

// WSClient is a single-connection client for the CLOB market data
// WebSocket. It covers one connect/subscribe/read cycle; reconnection
// policy belongs to the caller.
type WSClient struct {
	wsURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	onBook  BookHandler
	onPrice PriceChangeHandler

	// done is closed on Close, disconnected when the read loop exits.
	done         chan struct{}
	disconnected chan struct{}
	discOnce     sync.Once
}

// NewWSClient creates a client for the given endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string, onBook BookHandler, onPrice PriceChangeHandler) *WSClient {
	return &WSClient{
		wsURL:        wsURL,
		onBook:       onBook,
		onPrice:      onPrice,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)
	return nil
}

// Subscribe subscribes the given channels for the asset IDs. Valid
// channels are "book" and "price_change".
func (w *WSClient) Subscribe(channels []string, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	for _, ch := range channels {
		cmd := wsCommand{Type: "subscribe", Channel: ch, Assets: assetIDs}
		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
		}
		w.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("polymarket/ws: subscribe %s: %w", ch, err)
		}
	}
	return nil
}

// Disconnected is closed when the read loop exits for any reason.
func (w *WSClient) Disconnected() <-chan struct{} { return w.disconnected }

// Close shuts the connection down.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
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

func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		w.discOnce.Do(func() { close(w.disconnected) })
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-w.disconnected:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes a frame by its event type. Some feeds batch frames
// into a JSON array, so both shapes are accepted.
func (w *WSClient) handleMessage(raw []byte) {
	if len(raw) > 0 && raw[0] == '[' {
		var frames []json.RawMessage
		if err := json.Unmarshal(raw, &frames); err != nil {
			return
		}
		for _, f := range frames {
			w.handleFrame(f)
		}
		return
	}
	w.handleFrame(raw)
}

func (w *WSClient) handleFrame(raw []byte) {
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	msgType := envelope.MsgType
	if msgType == "" {
		msgType = envelope.Event
	}

	switch msgType {
	case "book":
		var book bookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		if w.onBook != nil {
			w.onBook(book.toDomain())
		}
	case "price_change":
		var pc priceChangeMessage
		if err := json.Unmarshal(raw, &pc); err != nil {
			return
		}
		if w.onPrice != nil {
			w.onPrice(pc.toDomain())
		}
	}
}
