// internal/game/lobby.go
package game

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
)

const (
	DefaultMaxPlayers  = 16
	DefaultMaxTeamSize = 8
	maxAnswerLength    = 200
)

// Phase is the lobby-level game phase.
type Phase string

const (
	PhasePregame Phase = "pregame"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

// Scores is the running score pair.
type Scores struct {
	Blue int `json:"blue"`
	Red  int `json:"red"`
}

// Leader reports which team is ahead, or WinnerTie.
func (s Scores) Leader() Winner {
	switch {
	case s.Blue > s.Red:
		return WinnerBlue
	case s.Red > s.Blue:
		return WinnerRed
	}
	return WinnerTie
}

// Lobby is the authoritative state for one game session. Methods suffixed
// with Unsafe assume Mu is held by the caller.
type Lobby struct {
	Code     string
	Host     *Player
	Settings Settings

	BlueTeam    []*Player
	RedTeam     []*Player
	BlueCaptain *Player
	RedCaptain  *Player

	Phase              Phase
	Rounds             []*Round
	CurrentRoundNumber int
	Scores             Scores

	MaxPlayers  int
	MaxTeamSize int

	// GameID is regenerated on every start; async results carry it so that
	// work from an earlier game is discarded.
	GameID      uuid.UUID
	RoundsReady bool

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time

	// Closed is set once the lobby has been torn down.
	Closed bool

	roundTimer *time.Timer

	Mu sync.Mutex
}

// NewLobby creates a lobby with the host on the blue team and default settings.
func NewLobby(code, hostName string, now time.Time) (*Lobby, error) {
	host, err := newPlayer(hostName, true, now)
	if err != nil {
		return nil, err
	}
	l := &Lobby{
		Code:        code,
		Host:        host,
		Settings:    DefaultSettings(),
		Phase:       PhasePregame,
		MaxPlayers:  DefaultMaxPlayers,
		MaxTeamSize: DefaultMaxTeamSize,
		CreatedAt:   now,
	}
	l.insertUnsafe(host, TeamBlue)
	return l, nil
}

// Players returns blue members followed by red members.
func (l *Lobby) Players() []*Player {
	out := make([]*Player, 0, len(l.BlueTeam)+len(l.RedTeam))
	out = append(out, l.BlueTeam...)
	return append(out, l.RedTeam...)
}

// PlayerByID finds a current member, or nil.
func (l *Lobby) PlayerByID(id uuid.UUID) *Player {
	for _, p := range l.BlueTeam {
		if p.ID == id {
			return p
		}
	}
	for _, p := range l.RedTeam {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// TotalPlayers counts both rosters.
func (l *Lobby) TotalPlayers() int {
	return len(l.BlueTeam) + len(l.RedTeam)
}

// CurrentRound is the round bound by the last advance, or nil.
func (l *Lobby) CurrentRound() *Round {
	if l.CurrentRoundNumber < 1 || l.CurrentRoundNumber > len(l.Rounds) {
		return nil
	}
	return l.Rounds[l.CurrentRoundNumber-1]
}

func (l *Lobby) requireHost(callerID uuid.UUID) (*Player, error) {
	p := l.PlayerByID(callerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if !p.IsHost {
		return nil, ErrNotHost
	}
	return p, nil
}

// JoinUnsafe adds a player to the smaller team, ties going to blue.
func (l *Lobby) JoinUnsafe(name string, now time.Time) (*Player, error) {
	if l.Phase != PhasePregame {
		return nil, ErrGameAlreadyStarted
	}
	if l.TotalPlayers() >= l.MaxPlayers {
		return nil, ErrLobbyFull
	}
	p, err := newPlayer(name, false, now)
	if err != nil {
		return nil, err
	}

	team := TeamBlue
	if len(l.RedTeam) < len(l.BlueTeam) {
		team = TeamRed
	}
	if l.TeamSize(team) >= l.MaxTeamSize {
		team = team.Other()
		if l.TeamSize(team) >= l.MaxTeamSize {
			return nil, ErrLobbyFull
		}
	}
	l.insertUnsafe(p, team)
	return p, nil
}

// UpdateSettingsUnsafe merges patch into the settings. Pregame only.
func (l *Lobby) UpdateSettingsUnsafe(callerID uuid.UUID, patch SettingsPatch) (Settings, error) {
	if _, err := l.requireHost(callerID); err != nil {
		return l.Settings, err
	}
	if l.Phase != PhasePregame {
		return l.Settings, ErrGameAlreadyStarted
	}
	next, err := l.Settings.Apply(patch)
	if err != nil {
		return l.Settings, err
	}
	l.Settings = next
	return next, nil
}

// KickUnsafe removes targetID on behalf of the host.
func (l *Lobby) KickUnsafe(callerID, targetID uuid.UUID) (*Player, error) {
	if _, err := l.requireHost(callerID); err != nil {
		return nil, err
	}
	target := l.PlayerByID(targetID)
	if target == nil {
		return nil, ErrTargetNotFound
	}
	if target.IsHost {
		return nil, ErrCannotKickHost
	}
	l.RemovePlayerUnsafe(target)
	return target, nil
}

// LeaveUnsafe removes playerID. When the host leaves the lobby is torn down
// and hostLeft is true.
func (l *Lobby) LeaveUnsafe(playerID uuid.UUID) (p *Player, hostLeft bool, err error) {
	p = l.PlayerByID(playerID)
	if p == nil {
		return nil, false, ErrPlayerNotFound
	}
	if p.IsHost {
		l.TeardownUnsafe()
		return p, true, nil
	}
	l.RemovePlayerUnsafe(p)
	return p, false, nil
}

// SetConnectedUnsafe records a presence change for playerID.
func (l *Lobby) SetConnectedUnsafe(playerID uuid.UUID, connected bool) (*Player, error) {
	p := l.PlayerByID(playerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	p.Connected = connected
	return p, nil
}

// StartUnsafe moves the lobby into play. The round bank is installed later
// through InstallRoundsUnsafe with the returned GameID.
func (l *Lobby) StartUnsafe(callerID uuid.UUID, now time.Time) (uuid.UUID, error) {
	if _, err := l.requireHost(callerID); err != nil {
		return uuid.Nil, err
	}
	if l.Phase != PhasePregame {
		return uuid.Nil, ErrGameAlreadyStarted
	}
	if l.BlueCaptain == nil || l.RedCaptain == nil {
		return uuid.Nil, ErrMissingCaptain
	}

	l.resetGameUnsafe()
	l.Phase = PhasePlaying
	l.GameID = uuid.New()
	l.StartedAt = now
	return l.GameID, nil
}

// InstallRoundsUnsafe binds the question bank for gameID. It reports false
// when gameID is no longer the running game or the bank is already installed.
func (l *Lobby) InstallRoundsUnsafe(gameID uuid.UUID, questions []trivia.Question) bool {
	if l.Closed || l.Phase != PhasePlaying || l.GameID != gameID || l.RoundsReady {
		return false
	}
	if len(questions) == 0 {
		questions = PlaceholderQuestions(l.Settings.Rounds)
	}
	l.Rounds = make([]*Round, len(questions))
	for i, q := range questions {
		l.Rounds[i] = newRound(i+1, q)
	}
	l.RoundsReady = true
	return true
}

// AdvanceRoundUnsafe opens the next round and sets its deadline.
func (l *Lobby) AdvanceRoundUnsafe(callerID uuid.UUID, now time.Time) (*Round, error) {
	if _, err := l.requireHost(callerID); err != nil {
		return nil, err
	}
	if l.Phase != PhasePlaying {
		return nil, ErrGameNotPlaying
	}
	if !l.RoundsReady {
		return nil, ErrRoundsNotReady
	}
	if cur := l.CurrentRound(); cur != nil && cur.State != RoundResolved {
		return nil, ErrRoundInProgress
	}
	if l.CurrentRoundNumber >= len(l.Rounds) {
		return nil, ErrNoRoundsRemaining
	}

	l.CurrentRoundNumber++
	r := l.CurrentRound()
	r.State = RoundAwaitingSubmissions
	r.StartedAt = now
	r.Deadline = now.Add(l.Settings.RoundDuration())
	return r, nil
}

// SubmitAnswerUnsafe records a captain's answer or steal. When this is the
// second submission the round moves to RoundResolving before returning.
func (l *Lobby) SubmitAnswerUnsafe(playerID uuid.UUID, isSteal bool, answer string, team Team, claimedRound int) (*Round, error) {
	p := l.PlayerByID(playerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if l.Phase != PhasePlaying {
		return nil, ErrGameNotPlaying
	}
	if team != TeamBlue && team != TeamRed {
		return nil, ErrInvalidTeam
	}
	if claimedRound != l.CurrentRoundNumber {
		return nil, ErrRoundMismatch
	}
	r := l.CurrentRound()
	if r == nil {
		return nil, ErrRoundClosed
	}
	if l.Captain(team) != p {
		return nil, ErrNotCaptain
	}
	sub := r.Submission(team)
	if sub.Submitted {
		return nil, ErrAlreadySubmitted
	}
	if r.State != RoundAwaitingSubmissions {
		return nil, ErrRoundClosed
	}

	answer = strings.TrimSpace(answer)
	if isSteal {
		answer = ""
	}
	if utf8.RuneCountInString(answer) > maxAnswerLength {
		return nil, ErrInvalidAnswer
	}

	*sub = Submission{Submitted: true, IsSteal: isSteal, Answer: answer, PlayerID: p.ID}
	if r.BothSubmitted() {
		r.State = RoundResolving
		l.StopRoundTimerUnsafe()
	}
	return r, nil
}

// ForceResolveUnsafe closes roundNumber when its deadline passes. Missing
// submissions count as incorrect non-steals. It reports false if the round
// is not the open round of gameID.
func (l *Lobby) ForceResolveUnsafe(gameID uuid.UUID, roundNumber int) (*Round, bool) {
	if l.Closed || l.GameID != gameID || l.Phase != PhasePlaying || l.CurrentRoundNumber != roundNumber {
		return nil, false
	}
	r := l.CurrentRound()
	if r == nil || r.State != RoundAwaitingSubmissions {
		return nil, false
	}
	r.TimedOut = true
	r.State = RoundResolving
	l.StopRoundTimerUnsafe()
	return r, true
}

// CompleteRoundUnsafe applies judged verdicts to a resolving round, scores it
// and ends the game after the last round. verdicts holds only judged teams.
func (l *Lobby) CompleteRoundUnsafe(gameID uuid.UUID, roundNumber int, verdicts map[Team]bool, now time.Time) (*Round, error) {
	if l.Closed || l.GameID != gameID || l.Phase != PhasePlaying || l.CurrentRoundNumber != roundNumber {
		return nil, ErrStaleRound
	}
	r := l.CurrentRound()
	if r == nil || r.State != RoundResolving {
		return nil, ErrStaleRound
	}

	for _, t := range []Team{TeamBlue, TeamRed} {
		sub := r.Submission(t)
		if correct, ok := verdicts[t]; ok {
			sub.Correct = correct
			sub.Judged = true
		}
	}
	r.Outcome = Resolve(
		Verdict{IsSteal: r.Blue.IsSteal, Correct: r.Blue.Correct},
		Verdict{IsSteal: r.Red.IsSteal, Correct: r.Red.Correct},
	)
	l.Scores.Blue += r.Outcome.BluePoints
	l.Scores.Red += r.Outcome.RedPoints
	r.State = RoundResolved

	if roundNumber == len(l.Rounds) {
		l.Phase = PhaseEnded
		l.EndedAt = now
	}
	return r, nil
}

// ReturnToLobbyUnsafe brings a playing or finished lobby back to pregame.
// Teams and captains are kept.
func (l *Lobby) ReturnToLobbyUnsafe(callerID uuid.UUID) error {
	if _, err := l.requireHost(callerID); err != nil {
		return err
	}
	if l.Phase == PhasePregame {
		return ErrAlreadyInLobby
	}
	l.resetGameUnsafe()
	l.Phase = PhasePregame
	return nil
}

// EndUnsafe tears the lobby down on behalf of the host.
func (l *Lobby) EndUnsafe(callerID uuid.UUID) error {
	if _, err := l.requireHost(callerID); err != nil {
		return err
	}
	l.TeardownUnsafe()
	return nil
}

// TeardownUnsafe stops timers and marks the lobby closed.
func (l *Lobby) TeardownUnsafe() {
	l.StopRoundTimerUnsafe()
	l.Closed = true
}

// SetRoundTimerUnsafe replaces the deadline timer for the open round.
func (l *Lobby) SetRoundTimerUnsafe(t *time.Timer) {
	l.StopRoundTimerUnsafe()
	l.roundTimer = t
}

// StopRoundTimerUnsafe cancels the deadline timer, if any.
func (l *Lobby) StopRoundTimerUnsafe() {
	if l.roundTimer != nil {
		l.roundTimer.Stop()
		l.roundTimer = nil
	}
}

func (l *Lobby) resetGameUnsafe() {
	l.StopRoundTimerUnsafe()
	l.Rounds = nil
	l.CurrentRoundNumber = 0
	l.Scores = Scores{}
	l.GameID = uuid.Nil
	l.RoundsReady = false
	l.StartedAt = time.Time{}
	l.EndedAt = time.Time{}
}
