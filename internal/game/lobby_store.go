// internal/game/lobby_store.go
package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxCodeAttempts = 32

// LobbyStore is the in-memory registry of live lobbies, keyed by code, plus
// an index from player to lobby. It never holds a lobby's Mu.
type LobbyStore struct {
	mu       sync.Mutex
	lobbies  map[string]*Lobby
	byPlayer map[uuid.UUID]string

	// generate is swappable in tests to force code collisions.
	generate func() (string, error)
}

// NewLobbyStore returns an empty registry.
func NewLobbyStore() *LobbyStore {
	return &LobbyStore{
		lobbies:  make(map[string]*Lobby),
		byPlayer: make(map[uuid.UUID]string),
		generate: GenerateCode,
	}
}

// CreateLobby allocates a unique code and registers a new lobby hosted by hostName.
func (s *LobbyStore) CreateLobby(hostName string, now time.Time) (*Lobby, error) {
	if _, err := NormalizeName(hostName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate lobby code: %w", err)
		}
		if _, taken := s.lobbies[code]; taken {
			continue
		}
		l, err := NewLobby(code, hostName, now)
		if err != nil {
			return nil, err
		}
		s.lobbies[code] = l
		s.byPlayer[l.Host.ID] = code
		return l, nil
	}
	return nil, fmt.Errorf("could not allocate a unique lobby code after %d attempts", maxCodeAttempts)
}

// GetLobby looks a lobby up by code.
func (s *LobbyStore) GetLobby(code string) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[NormalizeCode(code)]
	return l, ok
}

// DeleteLobby unregisters a lobby and every player index entry pointing at it.
func (s *LobbyStore) DeleteLobby(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, code)
	for pid, c := range s.byPlayer {
		if c == code {
			delete(s.byPlayer, pid)
		}
	}
}

// BindPlayer records that playerID belongs to code.
func (s *LobbyStore) BindPlayer(playerID uuid.UUID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPlayer[playerID] = code
}

// UnbindPlayer forgets playerID.
func (s *LobbyStore) UnbindPlayer(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPlayer, playerID)
}

// LobbyCodeFor returns the lobby code playerID belongs to.
func (s *LobbyStore) LobbyCodeFor(playerID uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byPlayer[playerID]
	return c, ok
}

// Len reports the number of live lobbies.
func (s *LobbyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}
