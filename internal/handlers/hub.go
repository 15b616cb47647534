// internal/handlers/hub.go
package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/session"
	"github.com/sirupsen/logrus"
)

const outboxSize = 32

// Envelope is the frame every server-to-client websocket message is wrapped in.
type Envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LobbyConnection is one live websocket bound to a player seat.
type LobbyConnection struct {
	LobbyCode string
	PlayerID  uuid.UUID
	Name      string
	OutChan   chan Envelope

	closing   chan struct{}
	closeOnce sync.Once
	closeCode int
	reason    string
}

func newLobbyConnection(code string, playerID uuid.UUID, name string) *LobbyConnection {
	return &LobbyConnection{
		LobbyCode: code,
		PlayerID:  playerID,
		Name:      name,
		OutChan:   make(chan Envelope, outboxSize),
		closing:   make(chan struct{}),
	}
}

// Write queues env without blocking. It reports false when the outbox is full.
func (c *LobbyConnection) Write(env Envelope) bool {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	select {
	case c.OutChan <- env:
		return true
	default:
		return false
	}
}

// WriteError is a convenience to send an error frame.
func (c *LobbyConnection) WriteError(code, message string) {
	c.Write(Envelope{Type: "error", Payload: map[string]string{"code": code, "message": message}})
}

// Close asks the write pump to flush what is queued and close the socket
// with closeCode. Only the first call counts.
func (c *LobbyConnection) Close(closeCode int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = closeCode
		c.reason = reason
		close(c.closing)
	})
}

// Hub fans session notifications out to the connections of each lobby.
type Hub struct {
	mu      sync.RWMutex
	lobbies map[string]map[*LobbyConnection]struct{}
	logger  *logrus.Logger
	now     func() time.Time
}

var _ session.Dispatcher = (*Hub)(nil)

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		lobbies: make(map[string]map[*LobbyConnection]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

// Add registers c under its lobby.
func (h *Hub) Add(c *LobbyConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.lobbies[c.LobbyCode]
	if !ok {
		conns = make(map[*LobbyConnection]struct{})
		h.lobbies[c.LobbyCode] = conns
	}
	conns[c] = struct{}{}
}

// Remove unregisters c. Removing an unknown connection is a no-op.
func (h *Hub) Remove(c *LobbyConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.lobbies[c.LobbyCode]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.lobbies, c.LobbyCode)
	}
}

// Count returns the number of live connections in a lobby.
func (h *Hub) Count(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lobbies[code])
}

// Dispatch delivers each notification to its recipients, or to the whole
// lobby when Recipients is nil. Slow clients drop frames instead of
// blocking the sender.
func (h *Hub) Dispatch(ns ...session.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ts := h.now().UTC()
	for _, n := range ns {
		conns := h.lobbies[n.LobbyCode]
		if len(conns) == 0 {
			continue
		}
		env := Envelope{Type: n.Event, Payload: n.Payload, Timestamp: ts}

		var only map[uuid.UUID]struct{}
		if n.Recipients != nil {
			only = make(map[uuid.UUID]struct{}, len(n.Recipients))
			for _, id := range n.Recipients {
				only[id] = struct{}{}
			}
		}
		for c := range conns {
			if only != nil {
				if _, ok := only[c.PlayerID]; !ok {
					continue
				}
			}
			if !c.Write(env) {
				h.logger.WithFields(logrus.Fields{
					"lobby":  n.LobbyCode,
					"player": c.PlayerID,
					"event":  n.Event,
				}).Warn("outbox full, dropping message")
			}
		}
	}
}

// Disconnect closes the connections of one player, or of the whole lobby
// when playerID is uuid.Nil.
func (h *Hub) Disconnect(code string, playerID uuid.UUID, reason string) {
	closeCode := PlayerRemovedError
	if playerID == uuid.Nil {
		closeCode = LobbyEndedError
	}

	h.mu.RLock()
	var targets []*LobbyConnection
	for c := range h.lobbies[code] {
		if playerID == uuid.Nil || c.PlayerID == playerID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Close(closeCode, reason)
	}
}
