package api

import (
	"net/http"

	"vigil/internal/dispatch"
	"vigil/internal/event"
	"vigil/internal/logging"

	"github.com/gorilla/websocket"
)

// MonitorHandler streams dispatch notifications over /ws/monitor: every
// mission lifecycle change and every connection coming or going, as seen by
// the engine. Retained history is replayed first so the monitor can catch up.
type MonitorHandler struct {
	Bus            *event.Bus[dispatch.Notification]
	Logger         *logging.Logger
	AllowedOrigins []string
}

func (h *MonitorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		http.Error(w, "monitor stream unavailable", http.StatusServiceUnavailable)
		return
	}

	kind := r.URL.Query().Get("kind")
	var filter func(dispatch.Notification) bool
	if kind != "" {
		filter = func(notification dispatch.Notification) bool {
			return notification.Kind == kind
		}
	}

	output, cancel := h.Bus.SubscribeFiltered(filter)
	defer cancel()

	history := h.Bus.History()
	serveWSStream(w, r, wsStreamConfig[dispatch.Notification]{
		AllowedOrigins: h.AllowedOrigins,
		Output:         output,
		Logger:         h.Logger,
		PreWrite: func(conn *websocket.Conn) error {
			for _, notification := range history {
				if filter != nil && !filter(notification) {
					continue
				}
				if err := writeJSONPayload(conn, notification); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
