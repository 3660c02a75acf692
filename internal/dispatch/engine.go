package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/store"
)

// Engine is the mission state machine. Inbound events are handled to
// completion under a single mutex: the repository mutation and the fan-out
// decision that depends on it form one critical section, so a fan-out always
// observes state at least as recent as the mutation that triggered it.
type Engine struct {
	store    store.Store
	registry *Registry
	bus      *event.Bus[Notification]
	metrics  *metrics.Registry
	logger   *logging.Logger

	mu sync.Mutex
}

type Options struct {
	Store   store.Store
	Bus     *event.Bus[Notification]
	Metrics *metrics.Registry
	Logger  *logging.Logger
}

func NewEngine(opts Options) *Engine {
	registry := opts.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	return &Engine{
		store:    opts.Store,
		registry: NewRegistry(),
		bus:      opts.Bus,
		metrics:  registry,
		logger:   opts.Logger,
	}
}

func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Connect tracks a new transport connection. The connection stays untagged,
// and therefore invisible to fan-out, until its first register event.
func (e *Engine) Connect(sender Sender) *Connection {
	conn := newConnection(sender)
	e.logDebug("connection opened", map[string]string{"connection": conn.ID()})
	return conn
}

// Disconnect removes the connection's tag. Safe to call for connections that
// never registered.
func (e *Engine) Disconnect(conn *Connection) {
	if e == nil || conn == nil {
		return
	}
	tag, had := e.registry.Unregister(conn)
	if !had {
		return
	}
	e.metrics.RemoveConnection(string(tag.Role))
	e.publish(Notification{
		Kind:         NotifyClosed,
		ConnectionID: conn.ID(),
		Role:         tag.Role,
	})
	e.logDebug("connection closed", map[string]string{
		"connection": conn.ID(),
		"role":       string(tag.Role),
	})
}

// HandleMessage parses and dispatches one inbound frame. A malformed frame is
// answered with a single error event to the sender; it never reaches any
// other connection and never terminates the sender's registration.
func (e *Engine) HandleMessage(ctx context.Context, conn *Connection, payload []byte) {
	var inbound inboundEvent
	if err := json.Unmarshal(payload, &inbound); err != nil {
		e.metrics.IncMalformedEvent()
		e.logWarn("malformed inbound event", map[string]string{
			"connection": conn.ID(),
			"error":      err.Error(),
		})
		e.sendError(conn, "Invalid message format")
		return
	}

	e.metrics.IncEventReceived(inbound.Type)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch inbound.Type {
	case EventRegister:
		e.handleRegister(ctx, conn, inbound)
	case EventRequestMission:
		e.handleRequestMission(ctx, conn, inbound)
	case EventAssignAgents:
		e.handleAssignAgents(ctx, conn, inbound)
	case EventAcceptMission:
		e.handleAcceptMission(ctx, conn, inbound)
	case EventDeclineMission:
		e.handleDeclineMission(conn, inbound)
	default:
		e.logDebug("ignoring unknown event type", map[string]string{
			"connection": conn.ID(),
			"type":       inbound.Type,
		})
	}
}

func (e *Engine) handleRegister(ctx context.Context, conn *Connection, inbound inboundEvent) {
	role, ok := ParseRole(inbound.ClientType)
	if !ok {
		e.sendError(conn, fmt.Sprintf("Unknown client type %q", inbound.ClientType))
		return
	}

	tag := Tag{Role: role}
	if role == RoleGuard {
		tag.AgentID = inbound.AgentID
	}
	if previous, had := e.registry.Register(conn, tag); had {
		e.metrics.RemoveConnection(string(previous.Role))
	}
	e.metrics.AddConnection(string(role))
	e.publish(Notification{
		Kind:         NotifyRegistered,
		ConnectionID: conn.ID(),
		Role:         role,
	})
	e.logInfo("connection registered", map[string]string{
		"connection": conn.ID(),
		"role":       string(role),
		"agent":      tag.AgentID,
	})

	if role != RoleOperator {
		return
	}
	agents, err := e.store.GetAgents(ctx)
	if err != nil {
		e.logError("load agents for initial data", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to load initial data")
		return
	}
	missions, err := e.store.GetMissions(ctx)
	if err != nil {
		e.logError("load missions for initial data", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to load initial data")
		return
	}
	e.send(conn, EventInitialData, initialDataEvent{
		Type:     EventInitialData,
		Agents:   agents,
		Missions: missions,
	})
}

func (e *Engine) handleRequestMission(ctx context.Context, conn *Connection, inbound inboundEvent) {
	mission, err := e.store.CreateMission(ctx, store.NewMission{Lat: inbound.Lat, Lng: inbound.Lng})
	if err != nil {
		e.logError("create mission", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to create mission")
		return
	}
	e.metrics.IncMissionCreated()
	e.logInfo("mission created", map[string]string{
		"mission": mission.ID,
		"lat":     strconv.FormatFloat(mission.Lat, 'f', -1, 64),
		"lng":     strconv.FormatFloat(mission.Lng, 'f', -1, 64),
	})

	e.fanOut(e.registry.Matching(func(tag Tag) bool { return tag.Role == RoleOperator }),
		EventNewMission, missionEvent{Type: EventNewMission, Mission: mission})
	e.send(conn, EventMissionCreated, missionEvent{Type: EventMissionCreated, Mission: mission})

	e.publish(Notification{
		Kind:         NotifyMissionCreated,
		ConnectionID: conn.ID(),
		Mission:      &mission,
	})
}

func (e *Engine) handleAssignAgents(ctx context.Context, conn *Connection, inbound inboundEvent) {
	agentIDs := dedupe(inbound.AgentIDs)
	if len(agentIDs) == 0 {
		e.sendError(conn, "Assignment requires at least one agent id")
		return
	}
	mission, ok, err := e.store.GetMission(ctx, inbound.MissionID)
	if err != nil {
		e.logError("load mission for assignment", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to assign agents")
		return
	}
	if !ok {
		e.sendError(conn, fmt.Sprintf("Unknown mission %q", inbound.MissionID))
		return
	}
	// Re-assignment of a still-unaccepted mission overwrites the list; once a
	// mission is accepted, its status never regresses.
	if mission.Status != store.MissionPending && mission.Status != store.MissionAssigned {
		e.sendError(conn, fmt.Sprintf("Mission %s cannot be assigned from status %s", mission.ID, mission.Status))
		return
	}

	assigned := store.MissionAssigned
	updated, _, err := e.store.UpdateMission(ctx, mission.ID, store.MissionPatch{
		Status:         &assigned,
		AssignedAgents: agentIDs,
	})
	if err != nil {
		e.logError("update mission assignment", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to assign agents")
		return
	}

	// An unknown agent id silently fails its own update; the others proceed
	// and no offer goes out for it since no connection can match it.
	agentAssigned := store.AgentAssigned
	for _, agentID := range agentIDs {
		if _, ok, err := e.store.UpdateAgent(ctx, agentID, store.AgentPatch{Status: &agentAssigned}); err != nil {
			e.logError("update agent assignment", map[string]string{"agent": agentID, "error": err.Error()})
		} else if !ok {
			e.logWarn("assignment names unknown agent", map[string]string{"agent": agentID, "mission": mission.ID})
		}
	}
	e.metrics.IncMissionAssigned()

	agents, err := e.store.GetAgents(ctx)
	if err != nil {
		e.logError("load agents after assignment", map[string]string{"error": err.Error()})
		agents = nil
	}
	e.fanOut(e.registry.Matching(func(tag Tag) bool { return tag.Role == RoleOperator }),
		EventMissionUpdated, missionUpdatedEvent{Type: EventMissionUpdated, Mission: updated, Agents: agents})

	// One offer per matching connection: several connections claiming the
	// same agent identity each receive their own copy.
	for _, agentID := range agentIDs {
		agentID := agentID
		e.fanOut(e.registry.Matching(func(tag Tag) bool {
			return tag.Role == RoleGuard && tag.AgentID == agentID
		}), EventMissionOffer, missionEvent{Type: EventMissionOffer, Mission: updated})
	}

	e.logInfo("mission assigned", map[string]string{
		"mission": updated.ID,
		"agents":  strconv.Itoa(len(agentIDs)),
	})
	e.publish(Notification{
		Kind:     NotifyMissionAssigned,
		Mission:  &updated,
		AgentIDs: agentIDs,
	})
}

func (e *Engine) handleAcceptMission(ctx context.Context, conn *Connection, inbound inboundEvent) {
	if inbound.AgentID == "" {
		e.sendError(conn, "Accept requires an agent id")
		return
	}
	mission, ok, err := e.store.GetMission(ctx, inbound.MissionID)
	if err != nil {
		e.logError("load mission for acceptance", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to accept mission")
		return
	}
	if !ok {
		e.sendError(conn, fmt.Sprintf("Unknown mission %q", inbound.MissionID))
		return
	}
	// Acceptance is a one-way door: only an assigned mission can be accepted,
	// so a second accept can never overwrite acceptedBy.
	if mission.Status != store.MissionAssigned {
		e.sendError(conn, fmt.Sprintf("Mission %s cannot be accepted from status %s", mission.ID, mission.Status))
		return
	}
	agent, ok, err := e.store.GetAgent(ctx, inbound.AgentID)
	if err != nil {
		e.logError("load accepting agent", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to accept mission")
		return
	}
	if !ok {
		e.sendError(conn, fmt.Sprintf("Unknown agent %q", inbound.AgentID))
		return
	}

	accepted := store.MissionAccepted
	acceptedBy := agent.ID
	updated, _, err := e.store.UpdateMission(ctx, mission.ID, store.MissionPatch{
		Status:     &accepted,
		AcceptedBy: &acceptedBy,
	})
	if err != nil {
		e.logError("update mission acceptance", map[string]string{"error": err.Error()})
		e.sendError(conn, "Failed to accept mission")
		return
	}
	agentAccepted := store.AgentAccepted
	updatedAgent, _, err := e.store.UpdateAgent(ctx, agent.ID, store.AgentPatch{Status: &agentAccepted})
	if err != nil {
		e.logError("update accepting agent", map[string]string{"error": err.Error()})
		updatedAgent = agent
	}
	e.metrics.IncMissionAccepted()

	// Acceptance goes to every registered connection regardless of role; the
	// requester watching this mission filters by the id it already knows.
	e.fanOut(e.registry.Matching(nil), EventMissionStatusUpdate, missionStatusEvent{
		Type:    EventMissionStatusUpdate,
		Mission: updated,
		Agent:   updatedAgent,
		Status:  string(store.MissionAccepted),
	})

	e.logInfo("mission accepted", map[string]string{
		"mission": updated.ID,
		"agent":   updatedAgent.ID,
	})
	e.publish(Notification{
		Kind:    NotifyMissionAccepted,
		Mission: &updated,
		Agent:   &updatedAgent,
	})
}

func (e *Engine) handleDeclineMission(conn *Connection, inbound inboundEvent) {
	// No repository mutation and no fan-out; the offer simply stays open.
	e.logInfo("mission declined", map[string]string{
		"connection": conn.ID(),
		"mission":    inbound.MissionID,
		"agent":      inbound.AgentID,
	})
	e.publish(Notification{
		Kind:         NotifyMissionDeclined,
		ConnectionID: conn.ID(),
		AgentIDs:     []string{inbound.AgentID},
	})
}

// dedupe keeps the first occurrence of each identity, preserving order.
func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (e *Engine) send(conn *Connection, eventType string, payload any) {
	if err := conn.Send(payload); err != nil {
		e.logDebug("send failed", map[string]string{
			"connection": conn.ID(),
			"type":       eventType,
			"error":      err.Error(),
		})
		return
	}
	e.metrics.IncEventSent(eventType)
}

func (e *Engine) fanOut(conns []*Connection, eventType string, payload any) {
	for _, conn := range conns {
		e.send(conn, eventType, payload)
	}
}

func (e *Engine) sendError(conn *Connection, message string) {
	e.send(conn, EventError, errorEvent{Type: EventError, Message: message})
}

func (e *Engine) publish(notification Notification) {
	if e.bus == nil {
		return
	}
	notification.Timestamp = time.Now().UTC()
	e.bus.Publish(notification)
}

func (e *Engine) logDebug(message string, fields map[string]string) {
	if e.logger != nil {
		e.logger.Debug(message, fields)
	}
}

func (e *Engine) logInfo(message string, fields map[string]string) {
	if e.logger != nil {
		e.logger.Info(message, fields)
	}
}

func (e *Engine) logWarn(message string, fields map[string]string) {
	if e.logger != nil {
		e.logger.Warn(message, fields)
	}
}

func (e *Engine) logError(message string, fields map[string]string) {
	if e.logger != nil {
		e.logger.Error(message, fields)
	}
}
