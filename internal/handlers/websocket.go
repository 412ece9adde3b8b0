package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboard runs on a different origin during development
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler broadcasts the global event stream to dashboard clients.
// Each connection gets its own hub subscription; slow clients drop entries
// instead of stalling the hub.
type WebSocketHandler struct {
	hub    *events.Hub
	logger arbor.ILogger
}

// NewWebSocketHandler creates a websocket broadcast handler
func NewWebSocketHandler(hub *events.Hub, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleWebSocket upgrades the connection and streams global events until the
// client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe("", 128)
	done := make(chan struct{})

	// Read pump: discard client messages, detect disconnect
	common.SafeGo(h.logger, "ws-read-pump", func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	common.SafeGo(h.logger, "ws-write-pump", func() {
		defer func() {
			h.hub.Unsubscribe(sub)
			conn.Close()
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case entry := <-sub.C:
				data, err := json.Marshal(entry)
				if err != nil {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						h.logger.Debug().Err(err).Msg("WebSocket write failed")
					}
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
