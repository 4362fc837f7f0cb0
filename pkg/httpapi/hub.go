package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/orchestrator"
)

// wireEvent is the {type, timestamp, data} envelope fanned out over /ws,
// per spec §4.10.
type wireEvent struct {
	Type      orchestrator.EventType `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]any         `json:"data"`
}

// Hub fans out every orchestrator event to all connected WebSocket
// clients. It satisfies orchestrator.Sink directly, so wiring it is a
// single Emit-call away from the driver.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan wireEvent
}

// NewHub builds an empty Hub. The upgrader allows any origin, matching a
// same-host deployment where the HTTP edge and its WebSocket both serve
// from one process.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]chan wireEvent),
	}
}

// Emit satisfies orchestrator.Sink, broadcasting e to every connected
// client. A client whose outbound buffer is full is dropped rather than
// blocking emission for the rest of the loop.
func (h *Hub) Emit(e orchestrator.Event) {
	msg := wireEvent{Type: e.Type, Timestamp: e.Timestamp, Data: e.Data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			logger.WarnCF("httpapi.hub", "dropping slow websocket client", nil)
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

// ServeWS upgrades the request to a WebSocket and streams events to it
// until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("httpapi.hub", "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	ch := make(chan wireEvent, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for msg := range ch {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// ClientCount reports how many WebSocket clients are currently connected,
// used by tests.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
