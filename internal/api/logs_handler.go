package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"vigil/internal/logging"

	"github.com/gorilla/websocket"
)

// LogsHandler streams structured log entries over /ws/logs. New clients get a
// replay of the retained buffer, then live entries. A minimum level can be set
// with the ?level query parameter or changed mid-stream with a
// {"level":"..."} text frame.
type LogsHandler struct {
	Logger         *logging.Logger
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level string `json:"level"`
}

type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) Get() logging.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.level
}

func (f *levelFilter) Set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Logger == nil || h.Logger.Buffer() == nil {
		http.Error(w, "log stream unavailable", http.StatusServiceUnavailable)
		return
	}

	filter := &levelFilter{}
	if rawLevel := r.URL.Query().Get("level"); rawLevel != "" {
		if level, ok := logging.ParseLevel(rawLevel); ok {
			filter.Set(level)
		}
	}

	output, cancel := h.Logger.Subscribe()
	if output == nil {
		http.Error(w, "log stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	if err := writeLogSnapshot(conn, h.Logger.Buffer().List(), filter.Get()); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case entry, ok := <-output:
				if !ok {
					return
				}
				if !logging.LevelAtLeast(entry.Level, filter.Get()) {
					continue
				}
				if err := writeJSONPayload(conn, entry); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var payload logFilterMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			continue
		}
		level, ok := logging.ParseLevel(payload.Level)
		if !ok {
			filter.Set("")
			continue
		}
		filter.Set(level)
	}
}

func writeLogSnapshot(conn *websocket.Conn, entries []logging.Entry, minLevel logging.Level) error {
	for _, entry := range entries {
		if !logging.LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		if err := writeJSONPayload(conn, entry); err != nil {
			return err
		}
	}
	return nil
}
