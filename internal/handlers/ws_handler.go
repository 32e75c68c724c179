package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/models"
	"github.com/ternarybob/armada/internal/services/state"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketHandler pushes the stats snapshot to connected dashboards after
// every controller tick, replacing client-side polling.
type WebSocketHandler struct {
	state    *state.SharedState
	logger   arbor.ILogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWebSocketHandler creates the stats push handler.
func NewWebSocketHandler(shared *state.SharedState, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		state:  shared,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from arbitrary origins in dev setups.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]struct{}{},
	}
}

// HandleWebSocket handles GET /ws: upgrades the connection, sends the current
// snapshot immediately, then holds the connection for tick broadcasts.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	h.send(conn, h.state.Snapshot())

	// Reader loop only detects disconnect; clients never send payloads.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes a snapshot to every connected client. Wired to the
// controller's tick callback.
func (h *WebSocketHandler) Broadcast(snapshot models.StatsResponse) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.send(conn, snapshot)
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, snapshot models.StatsResponse) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		h.drop(conn)
	}
}

func (h *WebSocketHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if present {
		conn.Close()
		h.logger.Debug().Msg("WebSocket client disconnected")
	}
}

// CloseAll disconnects every client during shutdown.
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
