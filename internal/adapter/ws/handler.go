// Package ws mirrors the widget to browsers over WebSocket. The hub is a
// presenter: every render call becomes a typed event carrying escaped HTML
// fragments, and new connections receive a snapshot of the current screen.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/supportchat/internal/logger"
	"github.com/Strob0t/supportchat/internal/render"
)

const writeTimeout = 2 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	log    *slog.Logger
}

// Hub manages browser connections and the mirrored widget state.
type Hub struct {
	frags *render.Fragments
	log   *slog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
	snap  Snapshot
}

// NewHub creates a hub rendering bubbles through frags.
func NewHub(frags *render.Fragments, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		frags: frags,
		log:   log,
		conns: make(map[*conn]struct{}),
		snap:  Snapshot{SendEnabled: true},
	}
}

// HandleWS upgrades the request and sends the current snapshot.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local mirror, any origin
	})
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := logger.From(r.Context(), h.log)
	c := &conn{ws: ws, cancel: cancel, log: log}

	h.mu.Lock()
	data, err := marshalEvent(EventSnapshot, h.snap)
	if err == nil {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err = ws.Write(wctx, websocket.MessageText, data)
		wcancel()
	}
	if err != nil {
		h.mu.Unlock()
		log.Debug("websocket snapshot failed", "error", err)
		cancel()
		_ = ws.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	h.conns[c] = struct{}{}
	bubbles := len(h.snap.Transcript)
	h.mu.Unlock()

	log.Info("mirror connected", "remote", r.RemoteAddr, "bubbles", bubbles)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every browser.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.cancel()
		delete(h.conns, c)
	}
}

// publish applies update to the snapshot and broadcasts the event.
func (h *Hub) publish(eventType string, payload any, update func(*Snapshot)) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if update != nil {
		update(&h.snap)
	}
	for c := range h.conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.ws.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.log.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		c.log.Info("mirror disconnected")
	}
}

func marshalEvent(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: eventType, Payload: data})
}
