package store

import "context"

// DefaultRoster is the fixed seed roster loaded when the settings file does
// not provide one. Positions are around Paris.
func DefaultRoster() []Agent {
	return []Agent{
		{ID: "AGENT-001", Name: "Agent Smith", Status: AgentAvailable, Lat: 48.8566, Lng: 2.3522},
		{ID: "AGENT-002", Name: "Agent Johnson", Status: AgentAvailable, Lat: 48.8606, Lng: 2.3376},
		{ID: "AGENT-003", Name: "Agent Chen", Status: AgentAvailable, Lat: 48.8529, Lng: 2.3499},
		{ID: "AGENT-004", Name: "Agent Williams", Status: AgentAvailable, Lat: 48.8584, Lng: 2.2945},
		{ID: "AGENT-005", Name: "Agent Brown", Status: AgentAvailable, Lat: 48.8738, Lng: 2.2950},
		{ID: "AGENT-006", Name: "Agent Davis", Status: AgentAvailable, Lat: 48.8648, Lng: 2.3489},
	}
}

// Seed creates any roster agents the store does not already hold. Existing
// records keep their current status and position.
func Seed(ctx context.Context, s Store, roster []Agent) error {
	for _, agent := range roster {
		if _, ok, err := s.GetAgent(ctx, agent.ID); err != nil {
			return err
		} else if ok {
			continue
		}
		if _, err := s.CreateAgent(ctx, agent); err != nil {
			return err
		}
	}
	return nil
}
