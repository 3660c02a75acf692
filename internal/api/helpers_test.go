package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vigil/internal/dispatch"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/store"

	"github.com/gorilla/websocket"
)

type testServer struct {
	Server  *httptest.Server
	Engine  *dispatch.Engine
	Bus     *event.Bus[dispatch.Notification]
	Logger  *logging.Logger
	Metrics *metrics.Registry
	Store   store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	memStore := store.NewMemStore()
	if err := store.Seed(context.Background(), memStore, store.DefaultRoster()); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	registry := &metrics.Registry{}
	logger := logging.NewLoggerWithOutput(logging.NewBuffer(100), logging.LevelDebug, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	bus := event.NewBus[dispatch.Notification](ctx, event.BusOptions{
		Name:        "dispatch",
		HistorySize: 64,
		Registry:    registry,
	})

	engine := dispatch.NewEngine(dispatch.Options{
		Store:   memStore,
		Bus:     bus,
		Metrics: registry,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	RegisterRoutes(mux, RoutesConfig{
		Engine:  engine,
		Store:   memStore,
		Bus:     bus,
		Metrics: registry,
		Logger:  logger,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test (listener unavailable): %v", err)
	}
	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: mux},
	}
	server.Start()
	t.Cleanup(server.Close)

	return &testServer{
		Server:  server,
		Engine:  engine,
		Bus:     bus,
		Logger:  logger,
		Metrics: registry,
		Store:   memStore,
	}
}

func (ts *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + path
}

func dialWS(t *testing.T, ts *testServer, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(path), nil)
	if err != nil {
		t.Fatalf("dial websocket %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write websocket: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload map[string]any
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return payload
}

func readEventOfType(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	for attempt := 0; attempt < 10; attempt++ {
		payload := readEvent(t, conn)
		if payload["type"] == eventType {
			return payload
		}
	}
	t.Fatalf("never received event %q", eventType)
	return nil
}

func waitForRegistrySize(t *testing.T, ts *testServer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ts.Engine.Registry().Len() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry never reached %d connections, have %d", want, ts.Engine.Registry().Len())
}

func registerWS(t *testing.T, conn *websocket.Conn, clientType, agentID string) {
	t.Helper()
	payload := map[string]any{"type": "register", "clientType": clientType}
	if agentID != "" {
		payload["agentId"] = agentID
	}
	sendEvent(t, conn, payload)
}
