// internal/game/player.go
package game

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength bounds a display name, counted in runes after trimming.
const MaxNameLength = 10

// Team identifies one of the two sides. The zero value means unassigned.
type Team string

const (
	TeamNone Team = ""
	TeamBlue Team = "blue"
	TeamRed  Team = "red"
)

// ParseTeam validates a team name from a client.
func ParseTeam(s string) (Team, error) {
	switch Team(strings.ToLower(strings.TrimSpace(s))) {
	case TeamBlue:
		return TeamBlue, nil
	case TeamRed:
		return TeamRed, nil
	}
	return TeamNone, ErrInvalidTeam
}

// Other returns the opposing team.
func (t Team) Other() Team {
	switch t {
	case TeamBlue:
		return TeamRed
	case TeamRed:
		return TeamBlue
	}
	return TeamNone
}

// Player is a member of exactly one lobby.
type Player struct {
	ID        uuid.UUID
	Name      string
	IsHost    bool
	IsCaptain bool
	Team      Team
	Connected bool
	JoinedAt  time.Time
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || utf8.RuneCountInString(n) > MaxNameLength {
		return "", ErrInvalidName
	}
	return n, nil
}

func newPlayer(name string, isHost bool, now time.Time) (*Player, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return &Player{
		ID:        uuid.New(),
		Name:      n,
		IsHost:    isHost,
		Connected: true,
		JoinedAt:  now,
	}, nil
}
