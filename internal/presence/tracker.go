// internal/presence/tracker.go
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a dropped player is kept before being removed.
const DefaultGrace = 30 * time.Second

type key struct {
	code     string
	playerID uuid.UUID
}

type pending struct {
	timer *time.Timer
}

// ExpireFunc is called, without any tracker lock held, when a player's grace period runs out.
type ExpireFunc func(code string, playerID uuid.UUID)

// Tracker counts live connections per player and runs a grace timer when the
// last one drops. A player may hold several connections at once.
type Tracker struct {
	mu       sync.Mutex
	grace    time.Duration
	conns    map[key]int
	pending  map[key]*pending
	onExpire ExpireFunc
	logger   *logrus.Logger
}

// NewTracker returns a tracker that calls onExpire after grace.
func NewTracker(grace time.Duration, onExpire ExpireFunc, logger *logrus.Logger) *Tracker {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Tracker{
		grace:    grace,
		conns:    make(map[key]int),
		pending:  make(map[key]*pending),
		onExpire: onExpire,
		logger:   logger,
	}
}

// Connect registers a live connection. It reports whether a pending
// expiry was cancelled, i.e. the player came back within the grace window.
func (t *Tracker) Connect(code string, playerID uuid.UUID) (reconnected bool) {
	k := key{code, playerID}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[k]++
	if p, ok := t.pending[k]; ok {
		p.timer.Stop()
		delete(t.pending, k)
		return true
	}
	return false
}

// Disconnect drops one connection. When it was the last one a grace timer
// starts and Disconnect reports true.
func (t *Tracker) Disconnect(code string, playerID uuid.UUID) (graceStarted bool) {
	k := key{code, playerID}
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.conns[k]
	if !ok {
		return false
	}
	if n > 1 {
		t.conns[k] = n - 1
		return false
	}
	delete(t.conns, k)

	p := &pending{}
	p.timer = time.AfterFunc(t.grace, func() { t.expire(k, p) })
	t.pending[k] = p
	return true
}

func (t *Tracker) expire(k key, p *pending) {
	t.mu.Lock()
	if t.pending[k] != p {
		t.mu.Unlock()
		return
	}
	delete(t.pending, k)
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{"lobby": k.code, "player": k.playerID}).Info("presence grace expired")
	if t.onExpire != nil {
		t.onExpire(k.code, k.playerID)
	}
}

// Forget drops all state for a player, cancelling any pending expiry.
func (t *Tracker) Forget(code string, playerID uuid.UUID) {
	k := key{code, playerID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[k]; ok {
		p.timer.Stop()
		delete(t.pending, k)
	}
	delete(t.conns, k)
}

// ForgetLobby drops all state for every player of code.
func (t *Tracker) ForgetLobby(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, p := range t.pending {
		if k.code == code {
			p.timer.Stop()
			delete(t.pending, k)
		}
	}
	for k := range t.conns {
		if k.code == code {
			delete(t.conns, k)
		}
	}
}

// Pending reports whether playerID is inside its grace window.
func (t *Tracker) Pending(code string, playerID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key{code, playerID}]
	return ok
}

// Online reports whether playerID has at least one live connection.
func (t *Tracker) Online(code string, playerID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[key{code, playerID}] > 0
}

// Stop cancels every pending expiry.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, k)
	}
}
