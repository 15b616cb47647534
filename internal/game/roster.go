// internal/game/roster.go
package game

import (
	"fmt"

	"github.com/google/uuid"
)

func (l *Lobby) teamMembers(t Team) *[]*Player {
	switch t {
	case TeamBlue:
		return &l.BlueTeam
	case TeamRed:
		return &l.RedTeam
	}
	return nil
}

// Captain returns the captain of t, or nil.
func (l *Lobby) Captain(t Team) *Player {
	switch t {
	case TeamBlue:
		return l.BlueCaptain
	case TeamRed:
		return l.RedCaptain
	}
	return nil
}

func (l *Lobby) setCaptain(t Team, p *Player) {
	switch t {
	case TeamBlue:
		l.BlueCaptain = p
	case TeamRed:
		l.RedCaptain = p
	}
}

// TeamSize reports how many players are on t.
func (l *Lobby) TeamSize(t Team) int {
	if m := l.teamMembers(t); m != nil {
		return len(*m)
	}
	return 0
}

// AssignTeamUnsafe moves p to team, optionally as captain. The previous team
// and captaincy are released in the same step. Selecting the current team only
// succeeds when it changes captaincy. Assumes l.Mu is held.
func (l *Lobby) AssignTeamUnsafe(p *Player, team Team, asCaptain bool) error {
	members := l.teamMembers(team)
	if members == nil {
		return ErrInvalidTeam
	}

	if p.Team == team {
		switch {
		case asCaptain == p.IsCaptain:
			return ErrAlreadyOnTeam
		case asCaptain:
			if c := l.Captain(team); c != nil && c != p {
				return ErrCaptaincyConflict
			}
			l.setCaptain(team, p)
			p.IsCaptain = true
		default:
			l.setCaptain(team, nil)
			p.IsCaptain = false
		}
		return nil
	}

	if len(*members) >= l.MaxTeamSize {
		return ErrTeamFull
	}
	if asCaptain {
		if c := l.Captain(team); c != nil && c != p {
			return ErrCaptaincyConflict
		}
	}

	l.detachUnsafe(p)
	l.insertUnsafe(p, team)
	if asCaptain {
		l.setCaptain(team, p)
		p.IsCaptain = true
	}
	return nil
}

// RemovePlayerUnsafe drops p from its team and captaincy. Idempotent.
func (l *Lobby) RemovePlayerUnsafe(p *Player) {
	l.detachUnsafe(p)
}

func (l *Lobby) detachUnsafe(p *Player) {
	for _, t := range []Team{TeamBlue, TeamRed} {
		members := l.teamMembers(t)
		for i, m := range *members {
			if m == p {
				*members = append((*members)[:i:i], (*members)[i+1:]...)
				break
			}
		}
		if l.Captain(t) == p {
			l.setCaptain(t, nil)
		}
	}
	p.Team = TeamNone
	p.IsCaptain = false
}

// insertUnsafe panics if p is already on a roster; callers detach first.
func (l *Lobby) insertUnsafe(p *Player, team Team) {
	if l.hasMember(p.ID) {
		panic(fmt.Sprintf("game: player %s inserted twice into lobby %s", p.ID, l.Code))
	}
	members := l.teamMembers(team)
	*members = append(*members, p)
	p.Team = team
}

func (l *Lobby) hasMember(id uuid.UUID) bool {
	return l.PlayerByID(id) != nil
}
