package api

import (
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
)

func missionPayload(t *testing.T, event map[string]any) map[string]any {
	t.Helper()
	mission, ok := event["mission"].(map[string]any)
	if !ok {
		t.Fatalf("event has no mission payload: %v", event)
	}
	return mission
}

func TestDispatchWebSocketLifecycle(t *testing.T) {
	ts := newTestServer(t)

	operator := dialWS(t, ts, "/ws")
	registerWS(t, operator, "operator", "")
	initial := readEventOfType(t, operator, "initial_data")
	agents, ok := initial["agents"].([]any)
	if !ok || len(agents) != 6 {
		t.Fatalf("expected 6 seeded agents, got %v", initial["agents"])
	}
	missions, ok := initial["missions"].([]any)
	if !ok || len(missions) != 0 {
		t.Fatalf("expected no missions at boot, got %v", initial["missions"])
	}

	client := dialWS(t, ts, "/ws")
	registerWS(t, client, "client", "")
	guard := dialWS(t, ts, "/ws")
	registerWS(t, guard, "guard", "AGENT-001")
	waitForRegistrySize(t, ts, 3)

	sendEvent(t, client, map[string]any{
		"type": "client:request_mission",
		"lat":  48.8566,
		"lng":  2.3522,
	})

	newMission := readEventOfType(t, operator, "server:new_mission")
	mission := missionPayload(t, newMission)
	if mission["id"] != "MISSION-001" {
		t.Fatalf("expected MISSION-001, got %v", mission["id"])
	}
	if mission["status"] != "pending" {
		t.Fatalf("expected pending mission, got %v", mission["status"])
	}

	created := readEventOfType(t, client, "server:mission_created")
	if missionPayload(t, created)["id"] != "MISSION-001" {
		t.Fatalf("requester did not get its mission back: %v", created)
	}

	sendEvent(t, operator, map[string]any{
		"type":      "operator:assign_agents",
		"missionId": "MISSION-001",
		"agentIds":  []string{"AGENT-001"},
	})

	updated := readEventOfType(t, operator, "server:mission_updated")
	mission = missionPayload(t, updated)
	if mission["status"] != "assigned" {
		t.Fatalf("expected assigned mission, got %v", mission["status"])
	}
	assignedAgents, ok := mission["assignedAgents"].([]any)
	if !ok || len(assignedAgents) != 1 || assignedAgents[0] != "AGENT-001" {
		t.Fatalf("unexpected assignment list: %v", mission["assignedAgents"])
	}
	allAgents, ok := updated["agents"].([]any)
	if !ok || len(allAgents) != 6 {
		t.Fatalf("mission update must carry the full agent list, got %v", updated["agents"])
	}

	offer := readEventOfType(t, guard, "server:mission_offer")
	if missionPayload(t, offer)["id"] != "MISSION-001" {
		t.Fatalf("guard offer names the wrong mission: %v", offer)
	}

	sendEvent(t, guard, map[string]any{
		"type":      "agent:accept_mission",
		"missionId": "MISSION-001",
		"agentId":   "AGENT-001",
	})

	for name, conn := range map[string]*websocket.Conn{
		"operator": operator,
		"client":   client,
		"guard":    guard,
	} {
		status := readEventOfType(t, conn, "server:mission_status_update")
		if status["status"] != "accepted" {
			t.Fatalf("%s: expected accepted status, got %v", name, status["status"])
		}
		mission := missionPayload(t, status)
		if mission["acceptedBy"] != "AGENT-001" {
			t.Fatalf("%s: unexpected acceptedBy %v", name, mission["acceptedBy"])
		}
		agent, ok := status["agent"].(map[string]any)
		if !ok || agent["id"] != "AGENT-001" || agent["status"] != "accepted" {
			t.Fatalf("%s: unexpected agent payload %v", name, status["agent"])
		}
	}
}

func TestDispatchWebSocketMalformedFrame(t *testing.T) {
	ts := newTestServer(t)

	client := dialWS(t, ts, "/ws")
	registerWS(t, client, "client", "")

	if err := client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}

	errEvent := readEventOfType(t, client, "error")
	if errEvent["message"] != "Invalid message format" {
		t.Fatalf("unexpected error message: %v", errEvent["message"])
	}

	// The connection survives the bad frame.
	sendEvent(t, client, map[string]any{"type": "client:request_mission", "lat": 1.0, "lng": 2.0})
	created := readEventOfType(t, client, "server:mission_created")
	if missionPayload(t, created)["id"] != "MISSION-001" {
		t.Fatalf("connection unusable after malformed frame: %v", created)
	}
}

func TestDispatchWebSocketUnknownClientType(t *testing.T) {
	ts := newTestServer(t)

	conn := dialWS(t, ts, "/ws")
	registerWS(t, conn, "dispatcher", "")

	errEvent := readEventOfType(t, conn, "error")
	if errEvent["message"] != `Unknown client type "dispatcher"` {
		t.Fatalf("unexpected error message: %v", errEvent["message"])
	}
}

func TestDispatchWebSocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(ts.wsURL("/ws"), header)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %v", resp)
	}
}

func TestDispatchWebSocketDisconnectUnregisters(t *testing.T) {
	ts := newTestServer(t)

	operator := dialWS(t, ts, "/ws")
	registerWS(t, operator, "operator", "")
	readEventOfType(t, operator, "initial_data")

	waitForRegistrySize(t, ts, 1)
	operator.Close()
	waitForRegistrySize(t, ts, 0)
}
