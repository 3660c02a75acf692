package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry counts dispatch activity. All counters are atomic; the registry is
// safe to share across every component.
type Registry struct {
	missionsCreated  atomic.Int64
	missionsAssigned atomic.Int64
	missionsAccepted atomic.Int64
	malformedEvents  atomic.Int64
	busPublished     atomic.Int64
	busDropped       atomic.Int64

	eventsReceived sync.Map // event type -> *atomic.Int64
	eventsSent     sync.Map // event type -> *atomic.Int64
	connections    sync.Map // role -> *atomic.Int64
}

var Default = &Registry{}

// Snapshot is the JSON-friendly view served by /api/status.
type Snapshot struct {
	MissionsCreated  int64            `json:"missions_created"`
	MissionsAssigned int64            `json:"missions_assigned"`
	MissionsAccepted int64            `json:"missions_accepted"`
	MalformedEvents  int64            `json:"malformed_events"`
	EventsReceived   map[string]int64 `json:"events_received,omitempty"`
	EventsSent       map[string]int64 `json:"events_sent,omitempty"`
	Connections      map[string]int64 `json:"connections,omitempty"`
}

func (r *Registry) IncMissionCreated() {
	if r == nil {
		return
	}
	r.missionsCreated.Add(1)
}

func (r *Registry) IncMissionAssigned() {
	if r == nil {
		return
	}
	r.missionsAssigned.Add(1)
}

func (r *Registry) IncMissionAccepted() {
	if r == nil {
		return
	}
	r.missionsAccepted.Add(1)
}

func (r *Registry) IncMalformedEvent() {
	if r == nil {
		return
	}
	r.malformedEvents.Add(1)
}

func (r *Registry) IncEventReceived(eventType string) {
	if r == nil {
		return
	}
	r.counter(&r.eventsReceived, eventType).Add(1)
}

func (r *Registry) IncEventSent(eventType string) {
	if r == nil {
		return
	}
	r.counter(&r.eventsSent, eventType).Add(1)
}

func (r *Registry) AddConnection(role string) {
	if r == nil {
		return
	}
	r.counter(&r.connections, role).Add(1)
}

func (r *Registry) RemoveConnection(role string) {
	if r == nil {
		return
	}
	r.counter(&r.connections, role).Add(-1)
}

// IncBusPublished records one event published on the internal bus.
func (r *Registry) IncBusPublished() {
	if r == nil {
		return
	}
	r.busPublished.Add(1)
}

// IncBusDropped records one bus event lost to a full subscriber channel.
func (r *Registry) IncBusDropped() {
	if r == nil {
		return
	}
	r.busDropped.Add(1)
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		MissionsCreated:  r.missionsCreated.Load(),
		MissionsAssigned: r.missionsAssigned.Load(),
		MissionsAccepted: r.missionsAccepted.Load(),
		MalformedEvents:  r.malformedEvents.Load(),
		EventsReceived:   collect(&r.eventsReceived),
		EventsSent:       collect(&r.eventsSent),
		Connections:      collect(&r.connections),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "vigil_missions_created_total", "Total missions created", r.missionsCreated.Load())
	writeCounter(writer, "vigil_missions_assigned_total", "Total missions assigned", r.missionsAssigned.Load())
	writeCounter(writer, "vigil_missions_accepted_total", "Total missions accepted", r.missionsAccepted.Load())
	writeCounter(writer, "vigil_malformed_events_total", "Total malformed inbound events", r.malformedEvents.Load())
	writeCounter(writer, "vigil_bus_published_total", "Total events published on the internal bus", r.busPublished.Load())
	writeCounter(writer, "vigil_bus_dropped_total", "Total bus events dropped", r.busDropped.Load())

	writeLabeled(writer, "vigil_events_received_total", "Inbound events by type", "type", collect(&r.eventsReceived))
	writeLabeled(writer, "vigil_events_sent_total", "Outbound events by type", "type", collect(&r.eventsSent))
	writeGaugeLabeled(writer, "vigil_connections", "Live registered connections by role", "role", collect(&r.connections))

	return nil
}

func (r *Registry) counter(values *sync.Map, key string) *atomic.Int64 {
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	value, _ := values.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func collect(values *sync.Map) map[string]int64 {
	out := map[string]int64{}
	values.Range(func(key, value any) bool {
		name, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Int64)
		if !ok {
			return true
		}
		out[name] = counter.Load()
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeLabeled(writer io.Writer, metric, help, label string, values map[string]int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	writeLabeledValues(writer, metric, label, values)
}

func writeGaugeLabeled(writer io.Writer, metric, help, label string, values map[string]int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	writeLabeledValues(writer, metric, label, values)
}

func writeLabeledValues(writer io.Writer, metric, label string, values map[string]int64) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(writer, "%s{%s=%s} %d\n", metric, label, formatLabel(key), values[key])
	}
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
