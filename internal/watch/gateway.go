package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/feedsync/internal/logging"
)

const reconnectDelay = 5 * time.Second

type subscribeFrame struct {
	Action   string `json:"action"`
	Address  string `json:"address"`
	Priority string `json:"priority,omitempty"`
}

type notificationFrame struct {
	Address   string `json:"address"`
	Edition   int64  `json:"edition"`
	Confirmed bool   `json:"confirmed"`
}

type gatewaySub struct {
	fn           Callback
	highPriority bool
}

// GatewayWatch maintains a websocket connection to a node gateway and
// dispatches its edition notifications. The connection is re-established
// with all subscriptions replayed after a drop.
type GatewayWatch struct {
	url string
	log logging.Logger

	mu   sync.Mutex
	subs map[string]gatewaySub
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGatewayWatch connects to the gateway at baseURL (http or https; the
// scheme is rewritten for the websocket endpoint) and starts the
// connection loop.
func NewGatewayWatch(baseURL string, log logging.Logger) *GatewayWatch {
	wsURL := strings.TrimRight(baseURL, "/") + "/watch"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	ctx, cancel := context.WithCancel(context.Background())
	w := &GatewayWatch{
		url:    wsURL,
		log:    log,
		subs:   make(map[string]gatewaySub),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Subscribe registers (or replaces) the callback for an address and
// announces it to the gateway.
func (w *GatewayWatch) Subscribe(address string, highPriority bool, fn Callback) error {
	w.mu.Lock()
	w.subs[address] = gatewaySub{fn: fn, highPriority: highPriority}
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		// not connected yet; the connect loop replays subscriptions
		return nil
	}
	return w.send(subscribeFrame{Action: "subscribe", Address: address, Priority: priority(highPriority)})
}

// Unsubscribe removes the callback and tells the gateway to stop
// notifying.
func (w *GatewayWatch) Unsubscribe(address string) {
	w.mu.Lock()
	_, had := w.subs[address]
	delete(w.subs, address)
	conn := w.conn
	w.mu.Unlock()

	if had && conn != nil {
		if err := w.send(subscribeFrame{Action: "unsubscribe", Address: address}); err != nil {
			w.log.Warn(w.ctx, "unsubscribe frame failed", "address", address, "error", err)
		}
	}
}

// Close tears the connection down and stops the loop.
func (w *GatewayWatch) Close() {
	w.cancel()
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.mu.Unlock()
	<-w.done
}

func (w *GatewayWatch) send(frame subscribeFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	if err := w.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("writing %s frame: %w", frame.Action, err)
	}
	return nil
}

func (w *GatewayWatch) run() {
	defer close(w.done)
	for {
		if w.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(w.ctx, w.url, nil)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.log.Warn(w.ctx, "gateway watch dial failed", "url", w.url, "error", err)
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		w.mu.Lock()
		w.conn = conn
		replay := make(map[string]gatewaySub, len(w.subs))
		for addr, sub := range w.subs {
			replay[addr] = sub
		}
		w.mu.Unlock()

		ok := true
		for addr, sub := range replay {
			if err := w.send(subscribeFrame{Action: "subscribe", Address: addr, Priority: priority(sub.highPriority)}); err != nil {
				w.log.Warn(w.ctx, "subscription replay failed", "address", addr, "error", err)
				ok = false
				break
			}
		}
		if ok {
			w.readLoop(conn)
		}

		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close()
	}
}

func (w *GatewayWatch) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() == nil {
				w.log.Info(w.ctx, "gateway watch connection lost", "error", err)
			}
			return
		}

		var note notificationFrame
		if err := json.Unmarshal(data, &note); err != nil {
			w.log.Warn(w.ctx, "dropping unparsable notification", "error", err)
			continue
		}

		w.mu.Lock()
		sub, ok := w.subs[note.Address]
		w.mu.Unlock()
		if ok {
			sub.fn(note.Edition, note.Confirmed)
		}
	}
}

func priority(high bool) string {
	if high {
		return "active"
	}
	return "passive"
}
