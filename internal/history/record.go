// internal/history/record.go
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/game"
)

// PlayerRecord is a roster entry in a finished game.
type PlayerRecord struct {
	Name      string `json:"name"`
	IsCaptain bool   `json:"isCaptain"`
}

// RoundRecord summarizes one resolved round.
type RoundRecord struct {
	RoundNumber int    `json:"roundNumber"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Tag         string `json:"tag"`
	BlueAnswer  string `json:"blueAnswer"`
	RedAnswer   string `json:"redAnswer"`
	BlueSteal   bool   `json:"blueSteal"`
	RedSteal    bool   `json:"redSteal"`
	BlueCorrect bool   `json:"blueCorrect"`
	RedCorrect  bool   `json:"redCorrect"`
	Winner      string `json:"winner"`
	BluePoints  int    `json:"bluePoints"`
	RedPoints   int    `json:"redPoints"`
	TimedOut    bool   `json:"timedOut"`
}

// GameRecord is the persisted summary of a completed game.
type GameRecord struct {
	GameID    uuid.UUID      `json:"game_id"`
	LobbyCode string         `json:"lobby_code"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Settings  game.Settings  `json:"settings"`
	Scores    game.Scores    `json:"scores"`
	Winner    game.Winner    `json:"winner"`
	BlueTeam  []PlayerRecord `json:"blue_team"`
	RedTeam   []PlayerRecord `json:"red_team"`
	Rounds    []RoundRecord  `json:"rounds"`
}

// Recorder persists finished games. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, rec GameRecord) error
}

// Discard drops every record.
type Discard struct{}

func (Discard) Record(context.Context, GameRecord) error { return nil }

func roster(ps []*game.Player) []PlayerRecord {
	out := make([]PlayerRecord, len(ps))
	for i, p := range ps {
		out[i] = PlayerRecord{Name: p.Name, IsCaptain: p.IsCaptain}
	}
	return out
}

// FromLobbyUnsafe captures a finished game. The caller holds l.Mu.
func FromLobbyUnsafe(l *game.Lobby) GameRecord {
	rec := GameRecord{
		GameID:    l.GameID,
		LobbyCode: l.Code,
		StartedAt: l.StartedAt,
		EndedAt:   l.EndedAt,
		Settings:  l.Settings,
		Scores:    l.Scores,
		BlueTeam:  roster(l.BlueTeam),
		RedTeam:   roster(l.RedTeam),
		Winner:    l.Scores.Leader(),
	}
	for _, r := range l.Rounds {
		if r.State != game.RoundResolved {
			continue
		}
		rec.Rounds = append(rec.Rounds, RoundRecord{
			RoundNumber: r.Number,
			Question:    r.Question,
			Answer:      r.Answer,
			Tag:         r.Tag,
			BlueAnswer:  r.Blue.Answer,
			RedAnswer:   r.Red.Answer,
			BlueSteal:   r.Blue.IsSteal,
			RedSteal:    r.Red.IsSteal,
			BlueCorrect: r.Blue.Correct,
			RedCorrect:  r.Red.Correct,
			Winner:      string(r.Outcome.Winner),
			BluePoints:  r.Outcome.BluePoints,
			RedPoints:   r.Outcome.RedPoints,
			TimedOut:    r.TimedOut,
		})
	}
	return rec
}
