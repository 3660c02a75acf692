package api

import (
	"testing"
)

func TestLogsWebSocketReplayAndLive(t *testing.T) {
	ts := newTestServer(t)
	ts.Logger.Info("boot complete", map[string]string{"component": "test"})

	conn := dialWS(t, ts, "/ws/logs")

	replayed := readEvent(t, conn)
	if replayed["message"] != "boot complete" {
		t.Fatalf("expected buffered entry first, got %v", replayed)
	}
	fields, ok := replayed["fields"].(map[string]any)
	if !ok || fields["component"] != "test" {
		t.Fatalf("entry lost its fields: %v", replayed)
	}

	ts.Logger.Warn("live entry", nil)
	for attempt := 0; attempt < 10; attempt++ {
		entry := readEvent(t, conn)
		if entry["message"] == "live entry" {
			if entry["level"] != "warning" {
				t.Fatalf("unexpected level %v", entry["level"])
			}
			return
		}
	}
	t.Fatalf("never received the live entry")
}

func TestLogsWebSocketLevelFilter(t *testing.T) {
	ts := newTestServer(t)
	ts.Logger.Debug("noise", nil)
	ts.Logger.Error("boom", map[string]string{"error": "broken"})

	conn := dialWS(t, ts, "/ws/logs?level=error")

	entry := readEvent(t, conn)
	if entry["message"] != "boom" {
		t.Fatalf("filter let a lower level through: %v", entry)
	}
}
