package dispatch

import (
	"strings"

	"vigil/internal/store"
)

// Role is a connection role exactly as it appears on the wire: the dispatch
// operator, the client requesting assistance, and the guard in the field.
type Role string

const (
	RoleOperator Role = "operator"
	RoleClient   Role = "client"
	RoleGuard    Role = "guard"
)

func ParseRole(value string) (Role, bool) {
	switch Role(strings.TrimSpace(value)) {
	case RoleOperator:
		return RoleOperator, true
	case RoleClient:
		return RoleClient, true
	case RoleGuard:
		return RoleGuard, true
	default:
		return "", false
	}
}

// Inbound event types.
const (
	EventRegister       = "register"
	EventRequestMission = "client:request_mission"
	EventAssignAgents   = "operator:assign_agents"
	EventAcceptMission  = "agent:accept_mission"
	EventDeclineMission = "agent:decline_mission"
)

// Outbound event types.
const (
	EventInitialData         = "initial_data"
	EventNewMission          = "server:new_mission"
	EventMissionCreated      = "server:mission_created"
	EventMissionUpdated      = "server:mission_updated"
	EventMissionOffer        = "server:mission_offer"
	EventMissionStatusUpdate = "server:mission_status_update"
	EventError               = "error"
)

// inboundEvent is the single flat frame every client sends; which fields are
// meaningful depends on Type.
type inboundEvent struct {
	Type       string   `json:"type"`
	ClientType string   `json:"clientType,omitempty"`
	AgentID    string   `json:"agentId,omitempty"`
	Lat        float64  `json:"lat,omitempty"`
	Lng        float64  `json:"lng,omitempty"`
	MissionID  string   `json:"missionId,omitempty"`
	AgentIDs   []string `json:"agentIds,omitempty"`
}

type initialDataEvent struct {
	Type     string          `json:"type"`
	Agents   []store.Agent   `json:"agents"`
	Missions []store.Mission `json:"missions"`
}

type missionEvent struct {
	Type    string        `json:"type"`
	Mission store.Mission `json:"mission"`
}

type missionUpdatedEvent struct {
	Type    string        `json:"type"`
	Mission store.Mission `json:"mission"`
	Agents  []store.Agent `json:"agents"`
}

type missionStatusEvent struct {
	Type    string        `json:"type"`
	Mission store.Mission `json:"mission"`
	Agent   store.Agent   `json:"agent"`
	Status  string        `json:"status"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
