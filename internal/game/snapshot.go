// internal/game/snapshot.go
package game

import (
	"time"

	"github.com/google/uuid"
)

// PlayerView is the wire form of a Player.
type PlayerView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Team        Team      `json:"team"`
	IsCaptain   bool      `json:"isCaptain"`
	IsConnected bool      `json:"isConnected"`
	IsHost      bool      `json:"isHost"`
}

// HostView identifies the host.
type HostView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CaptainsView holds the captain ids, null when unset.
type CaptainsView struct {
	Blue *uuid.UUID `json:"blue"`
	Red  *uuid.UUID `json:"red"`
}

// AnswerView is one team's submission as shown after resolution.
type AnswerView struct {
	Submitted bool   `json:"submitted"`
	IsSteal   bool   `json:"isSteal"`
	Answer    string `json:"answer"`
	Correct   bool   `json:"correct"`
}

// RoundView is the wire form of a Round. Answers stay hidden until the round resolves.
type RoundView struct {
	RoundNumber   int         `json:"roundNumber"`
	Question      string      `json:"question"`
	Tag           string      `json:"tag"`
	State         string      `json:"state"`
	StartedAt     time.Time   `json:"startedAt"`
	Deadline      time.Time   `json:"deadline"`
	BlueSubmitted bool        `json:"blueSubmitted"`
	RedSubmitted  bool        `json:"redSubmitted"`
	CorrectAnswer string      `json:"correctAnswer,omitempty"`
	Blue          *AnswerView `json:"blue,omitempty"`
	Red           *AnswerView `json:"red,omitempty"`
	Outcome       *Outcome    `json:"outcome,omitempty"`
	TimedOut      bool        `json:"timedOut"`
}

// GameStateView summarizes the running game.
type GameStateView struct {
	CurrentRoundNumber int        `json:"currentRoundNumber"`
	TotalRounds        int        `json:"totalRounds"`
	RoundsReady        bool       `json:"roundsReady"`
	Scores             Scores     `json:"scores"`
	CurrentRound       *RoundView `json:"currentRound"`
}

// LobbySnapshot is the full wire form of a Lobby.
type LobbySnapshot struct {
	Code        string        `json:"code"`
	Settings    Settings      `json:"settings"`
	Host        HostView      `json:"host"`
	BlueTeam    []PlayerView  `json:"blueTeam"`
	RedTeam     []PlayerView  `json:"redTeam"`
	Captains    CaptainsView  `json:"captains"`
	PlayerCount int           `json:"playerCount"`
	BlueCount   int           `json:"blueTeamCount"`
	RedCount    int           `json:"redTeamCount"`
	MaxPlayers  int           `json:"maxPlayers"`
	MaxTeamSize int           `json:"maxTeamSize"`
	GamePhase   Phase         `json:"gamePhase"`
	GameState   GameStateView `json:"gameState"`
}

// RoundResults is the payload broadcast when a round resolves.
type RoundResults struct {
	RoundNumber   int        `json:"roundNumber"`
	Question      string     `json:"question"`
	CorrectAnswer string     `json:"correctAnswer"`
	Blue          AnswerView `json:"blue"`
	Red           AnswerView `json:"red"`
	Winner        Winner     `json:"winner"`
	BluePoints    int        `json:"bluePoints"`
	RedPoints     int        `json:"redPoints"`
	Scores        Scores     `json:"scores"`
	TimedOut      bool       `json:"timedOut"`
	GameComplete  bool       `json:"gameComplete"`
}

// View converts a Player.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Team:        p.Team,
		IsCaptain:   p.IsCaptain,
		IsConnected: p.Connected,
		IsHost:      p.IsHost,
	}
}

func (s Submission) view() AnswerView {
	return AnswerView{Submitted: s.Submitted, IsSteal: s.IsSteal, Answer: s.Answer, Correct: s.Correct}
}

// View converts a Round, revealing answers only once resolved.
func (r *Round) View() *RoundView {
	v := &RoundView{
		RoundNumber:   r.Number,
		Question:      r.Question,
		Tag:           r.Tag,
		State:         r.State.String(),
		StartedAt:     r.StartedAt,
		Deadline:      r.Deadline,
		BlueSubmitted: r.Blue.Submitted,
		RedSubmitted:  r.Red.Submitted,
		TimedOut:      r.TimedOut,
	}
	if r.State == RoundResolved {
		blue, red, outcome := r.Blue.view(), r.Red.view(), r.Outcome
		v.CorrectAnswer = r.Answer
		v.Blue, v.Red, v.Outcome = &blue, &red, &outcome
	}
	return v
}

func views(ps []*Player) []PlayerView {
	out := make([]PlayerView, len(ps))
	for i, p := range ps {
		out[i] = p.View()
	}
	return out
}

func captainID(p *Player) *uuid.UUID {
	if p == nil {
		return nil
	}
	id := p.ID
	return &id
}

// SnapshotUnsafe builds a detached copy of the lobby state. Assumes Mu is held.
func (l *Lobby) SnapshotUnsafe() LobbySnapshot {
	snap := LobbySnapshot{
		Code:        l.Code,
		Settings:    l.Settings,
		Host:        HostView{ID: l.Host.ID, Name: l.Host.Name},
		BlueTeam:    views(l.BlueTeam),
		RedTeam:     views(l.RedTeam),
		Captains:    CaptainsView{Blue: captainID(l.BlueCaptain), Red: captainID(l.RedCaptain)},
		PlayerCount: l.TotalPlayers(),
		BlueCount:   len(l.BlueTeam),
		RedCount:    len(l.RedTeam),
		MaxPlayers:  l.MaxPlayers,
		MaxTeamSize: l.MaxTeamSize,
		GamePhase:   l.Phase,
		GameState: GameStateView{
			CurrentRoundNumber: l.CurrentRoundNumber,
			TotalRounds:        len(l.Rounds),
			RoundsReady:        l.RoundsReady,
			Scores:             l.Scores,
		},
	}
	snap.Settings.Tags = append([]string(nil), l.Settings.Tags...)
	if r := l.CurrentRound(); r != nil {
		snap.GameState.CurrentRound = r.View()
	}
	return snap
}

// ResultsUnsafe builds the round-results payload for r. Assumes Mu is held.
func (l *Lobby) ResultsUnsafe(r *Round) RoundResults {
	return RoundResults{
		RoundNumber:   r.Number,
		Question:      r.Question,
		CorrectAnswer: r.Answer,
		Blue:          r.Blue.view(),
		Red:           r.Red.view(),
		Winner:        r.Outcome.Winner,
		BluePoints:    r.Outcome.BluePoints,
		RedPoints:     r.Outcome.RedPoints,
		Scores:        l.Scores,
		TimedOut:      r.TimedOut,
		GameComplete:  l.Phase == PhaseEnded,
	}
}
