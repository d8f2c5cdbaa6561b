// internal/handlers/hub.go
package handlers

import (
	"context"
	"sync"

	"github.com/jason-s-yu/typerace/internal/race"
	"github.com/sirupsen/logrus"
)

// outBufferSize is the number of events a connection may have queued before it is
// treated as a slow consumer and disconnected.
const outBufferSize = 256

// RaceConnection is one accepted websocket. Events are queued on OutChan and written by
// the connection's write pump.
type RaceConnection struct {
	ID      string
	OutChan chan race.Event
	Cancel  context.CancelFunc

	once sync.Once
}

// write queues ev without blocking. It reports false if the buffer is full.
func (c *RaceConnection) write(ev race.Event) bool {
	select {
	case c.OutChan <- ev:
		return true
	default:
		return false
	}
}

// drop cancels the connection's context; the pumps notice and the handler cleans up.
func (c *RaceConnection) drop() {
	c.once.Do(func() {
		if c.Cancel != nil {
			c.Cancel()
		}
	})
}

// Hub tracks live connections and the room groups they belong to. It implements
// race.Broadcaster. All methods are non-blocking so they can be called while a room lock
// is held; events to one connection keep the order they were sent in.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*RaceConnection
	groups map[string]map[string]struct{}
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		conns:  make(map[string]*RaceConnection),
		groups: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *RaceConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// Unregister forgets the connection and removes it from every group.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
	for roomID, members := range h.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, roomID)
		}
	}
}

func (h *Hub) Emit(connID string, ev race.Event) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(c, ev)
}

func (h *Hub) Broadcast(roomID string, ev race.Event, exclude ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.groups[roomID] {
		if excluded(connID, exclude) {
			continue
		}
		if c, ok := h.conns[connID]; ok {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) JoinGroup(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.groups[roomID] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) LeaveGroup(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, roomID)
	}
}

// GroupSize is the number of connections in the room's group.
func (h *Hub) GroupSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[roomID])
}

func (h *Hub) deliver(c *RaceConnection, ev race.Event) {
	if c.write(ev) {
		return
	}
	h.logger.WithFields(logrus.Fields{
		"conn":  c.ID,
		"event": ev.Type,
	}).Warn("outbound buffer full, dropping connection")
	c.drop()
}

func excluded(connID string, exclude []string) bool {
	for _, id := range exclude {
		if id == connID {
			return true
		}
	}
	return false
}

var _ race.Broadcaster = (*Hub)(nil)
