package api

import (
	"net/http"

	"vigil/internal/dispatch"
	"vigil/internal/logging"

	"github.com/gorilla/websocket"
)

// DispatchHandler serves the /ws endpoint every participant connects to. The
// handler owns the transport only: frames go to the engine untouched, and the
// engine decides everything else.
type DispatchHandler struct {
	Engine         *dispatch.Engine
	Logger         *logging.Logger
	AllowedOrigins []string
}

func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		http.Error(w, "dispatch engine unavailable", http.StatusInternalServerError)
		return
	}

	wsConn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, "websocket upgrade failed", err)
		return
	}

	sender := newWSSender(wsConn)
	defer sender.Close()

	conn := h.Engine.Connect(sender)
	defer h.Engine.Disconnect(conn)

	for {
		msgType, payload, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.Engine.HandleMessage(r.Context(), conn, payload)
	}
}
