package dispatch

import (
	"time"

	"vigil/internal/store"
)

// Notification kinds published on the internal bus for observers such as the
// monitor stream. These are not part of the client-facing dispatch fan-out.
const (
	NotifyMissionCreated  = "mission_created"
	NotifyMissionAssigned = "mission_assigned"
	NotifyMissionAccepted = "mission_accepted"
	NotifyMissionDeclined = "mission_declined"
	NotifyRegistered      = "connection_registered"
	NotifyClosed          = "connection_closed"
)

type Notification struct {
	Kind         string         `json:"kind"`
	Timestamp    time.Time      `json:"timestamp"`
	ConnectionID string         `json:"connectionId,omitempty"`
	Role         Role           `json:"role,omitempty"`
	Mission      *store.Mission `json:"mission,omitempty"`
	Agent        *store.Agent   `json:"agent,omitempty"`
	AgentIDs     []string       `json:"agentIds,omitempty"`
}
