package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"stablevault/core/events"
	"stablevault/core/types"
	"stablevault/observability"
)

const (
	wsWriteTimeout     = 10 * time.Second
	wsSubscriberBuffer = 64
	wsSinkName         = "ws"
)

type subscriber struct {
	filter string
	ch     chan []byte
}

// Hub fans committed events out to websocket subscribers. It implements
// events.Emitter. Slow subscribers lose events instead of blocking the node.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(e events.Event) {
	if h == nil || e == nil {
		return
	}
	rendered := events.Render(e)
	payload, err := json.Marshal(rendered)
	if err != nil {
		h.logger.Warn("ws: encode event", slog.String("event", e.EventType()), slog.String("error", err.Error()))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !matchesFilter(sub.filter, rendered) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			observability.Events().RecordDropped(wsSinkName)
		}
	}
}

// Subscribers reports the number of attached streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber. Their streams end once drained.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

func (h *Hub) subscribe(filter string) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{filter: filter, ch: make(chan []byte, wsSubscriberBuffer)}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. The optional type query parameter restricts the stream to event types
// with that prefix, for example type=vault.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	sub, ok := h.subscribe(filter)
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := stream(ctx, conn, sub.ch); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func stream(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func matchesFilter(filter string, e *types.Event) bool {
	return filter == "" || strings.HasPrefix(e.Type, filter)
}
