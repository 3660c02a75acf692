package store

import (
	"context"
	"fmt"
	"time"
)

type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentAssigned  AgentStatus = "assigned"
	AgentAccepted  AgentStatus = "accepted"
)

type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionAssigned  MissionStatus = "assigned"
	MissionAccepted  MissionStatus = "accepted"
	MissionCompleted MissionStatus = "completed"
)

// Agent is a field unit. Agents are created from the seed roster at startup
// and never deleted.
type Agent struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Status AgentStatus `json:"status"`
	Lat    float64     `json:"lat"`
	Lng    float64     `json:"lng"`
}

// Mission is a single security-response request. AssignedAgents stays nil
// until an operator assigns; AcceptedBy stays nil until exactly one agent
// accepts.
type Mission struct {
	ID             string        `json:"id"`
	Lat            float64       `json:"lat"`
	Lng            float64       `json:"lng"`
	Status         MissionStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	AssignedAgents []string      `json:"assignedAgents"`
	AcceptedBy     *string       `json:"acceptedBy"`
}

// NewMission carries the caller-supplied mission fields. Identity, status, and
// timestamp are always assigned by the store.
type NewMission struct {
	Lat float64
	Lng float64
}

// AgentPatch is a shallow merge: nil fields leave prior values untouched.
type AgentPatch struct {
	Name   *string
	Status *AgentStatus
	Lat    *float64
	Lng    *float64
}

// MissionPatch is a shallow merge: nil fields leave prior values untouched.
type MissionPatch struct {
	Status         *MissionStatus
	AssignedAgents []string
	AcceptedBy     *string
}

// Store holds agent and mission records. Every call completes atomically with
// respect to other calls; no call ever removes a record. Lookups report
// absence through the bool return, errors are reserved for storage failures.
type Store interface {
	GetAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, bool, error)
	CreateAgent(ctx context.Context, agent Agent) (Agent, error)
	UpdateAgent(ctx context.Context, id string, patch AgentPatch) (Agent, bool, error)

	GetMissions(ctx context.Context) ([]Mission, error)
	GetMission(ctx context.Context, id string) (Mission, bool, error)
	CreateMission(ctx context.Context, mission NewMission) (Mission, error)
	UpdateMission(ctx context.Context, id string, patch MissionPatch) (Mission, bool, error)
}

// MissionID formats the zero-padded mission identity for a sequence number.
func MissionID(sequence int64) string {
	return fmt.Sprintf("MISSION-%03d", sequence)
}

func (a Agent) clone() Agent {
	return a
}

func (m Mission) clone() Mission {
	cloned := m
	if m.AssignedAgents != nil {
		cloned.AssignedAgents = append([]string(nil), m.AssignedAgents...)
	}
	if m.AcceptedBy != nil {
		accepted := *m.AcceptedBy
		cloned.AcceptedBy = &accepted
	}
	return cloned
}

func (m Mission) applyPatch(patch MissionPatch) Mission {
	merged := m.clone()
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.AssignedAgents != nil {
		merged.AssignedAgents = append([]string(nil), patch.AssignedAgents...)
	}
	if patch.AcceptedBy != nil {
		accepted := *patch.AcceptedBy
		merged.AcceptedBy = &accepted
	}
	return merged
}

func (a Agent) applyPatch(patch AgentPatch) Agent {
	merged := a
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.Lat != nil {
		merged.Lat = *patch.Lat
	}
	if patch.Lng != nil {
		merged.Lng = *patch.Lng
	}
	return merged
}
