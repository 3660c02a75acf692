package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps all records in process memory. It is the default backend;
// nothing survives a restart.
type MemStore struct {
	mu             sync.Mutex
	agents         map[string]Agent
	missions       map[string]Mission
	missionCounter int64
	now            func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		agents:   make(map[string]Agent),
		missions: make(map[string]Mission),
		now:      time.Now,
	}
}

func (s *MemStore) GetAgents(ctx context.Context) ([]Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make([]Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		agents = append(agents, agent.clone())
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

func (s *MemStore) GetAgent(ctx context.Context, id string) (Agent, bool, error) {
	if err := ctx.Err(); err != nil {
		return Agent{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return Agent{}, false, nil
	}
	return agent.clone(), true, nil
}

func (s *MemStore) CreateAgent(ctx context.Context, agent Agent) (Agent, error) {
	if err := ctx.Err(); err != nil {
		return Agent{}, err
	}
	if agent.Status == "" {
		agent.Status = AgentAvailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[agent.ID] = agent
	return agent.clone(), nil
}

func (s *MemStore) UpdateAgent(ctx context.Context, id string, patch AgentPatch) (Agent, bool, error) {
	if err := ctx.Err(); err != nil {
		return Agent{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return Agent{}, false, nil
	}
	merged := agent.applyPatch(patch)
	s.agents[id] = merged
	return merged.clone(), true, nil
}

func (s *MemStore) GetMissions(ctx context.Context) ([]Mission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	missions := make([]Mission, 0, len(s.missions))
	for _, mission := range s.missions {
		missions = append(missions, mission.clone())
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].ID < missions[j].ID })
	return missions, nil
}

func (s *MemStore) GetMission(ctx context.Context, id string) (Mission, bool, error) {
	if err := ctx.Err(); err != nil {
		return Mission{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mission, ok := s.missions[id]
	if !ok {
		return Mission{}, false, nil
	}
	return mission.clone(), true, nil
}

func (s *MemStore) CreateMission(ctx context.Context, mission NewMission) (Mission, error) {
	if err := ctx.Err(); err != nil {
		return Mission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.missionCounter++
	created := Mission{
		ID:        MissionID(s.missionCounter),
		Lat:       mission.Lat,
		Lng:       mission.Lng,
		Status:    MissionPending,
		Timestamp: s.now().UTC(),
	}
	s.missions[created.ID] = created
	return created.clone(), nil
}

func (s *MemStore) UpdateMission(ctx context.Context, id string, patch MissionPatch) (Mission, bool, error) {
	if err := ctx.Err(); err != nil {
		return Mission{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mission, ok := s.missions[id]
	if !ok {
		return Mission{}, false, nil
	}
	merged := mission.applyPatch(patch)
	s.missions[id] = merged
	return merged.clone(), true, nil
}
