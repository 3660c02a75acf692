package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// Sender delivers one outbound event to a live connection. Implementations
// must tolerate a connection mid-close: a failed delivery is reported as an
// error but never ends the dispatch of an event to other connections.
type Sender interface {
	Send(event any) error
}

// Connection is one live transport connection. It is invisible to fan-out
// until a register event gives it a tag.
type Connection struct {
	id     string
	sender Sender
}

func newConnection(sender Sender) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		sender: sender,
	}
}

func (c *Connection) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

func (c *Connection) Send(event any) error {
	if c == nil || c.sender == nil {
		return nil
	}
	return c.sender.Send(event)
}

// Tag is the role/identity metadata a connection declares on registration.
// AgentID is set only for guard connections. Nothing stops several
// connections from carrying the same tag.
type Tag struct {
	Role    Role
	AgentID string
}

// Registry tracks the tag of every registered connection.
type Registry struct {
	mu   sync.RWMutex
	tags map[*Connection]Tag
}

func NewRegistry() *Registry {
	return &Registry{
		tags: make(map[*Connection]Tag),
	}
}

// Register associates a connection with a tag, replacing any prior tag for
// that connection. The previous tag is returned when one existed.
func (r *Registry) Register(conn *Connection, tag Tag) (Tag, bool) {
	if r == nil || conn == nil {
		return Tag{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, had := r.tags[conn]
	r.tags[conn] = tag
	return previous, had
}

// Unregister removes the connection's tag. Called on close or transport
// error; missed deliveries are never retried.
func (r *Registry) Unregister(conn *Connection) (Tag, bool) {
	if r == nil || conn == nil {
		return Tag{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.tags[conn]
	if ok {
		delete(r.tags, conn)
	}
	return tag, ok
}

func (r *Registry) Tag(conn *Connection) (Tag, bool) {
	if r == nil || conn == nil {
		return Tag{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.tags[conn]
	return tag, ok
}

// Matching returns every registered connection whose tag satisfies the
// predicate, in unspecified order. A nil predicate matches all registered
// connections.
func (r *Registry) Matching(predicate func(Tag) bool) []*Connection {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*Connection, 0, len(r.tags))
	for conn, tag := range r.tags {
		if predicate == nil || predicate(tag) {
			matched = append(matched, conn)
		}
	}
	return matched
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tags)
}
