// internal/session/service_test.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/auth"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/history"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDispatcher records everything the service pushes.
type mockDispatcher struct {
	mu          sync.Mutex
	notes       []Notification
	disconnects []string
}

func (d *mockDispatcher) Dispatch(ns ...Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append(d.notes, ns...)
}

func (d *mockDispatcher) Disconnect(code string, playerID uuid.UUID, _ string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects = append(d.disconnects, code+"/"+playerID.String())
}

func (d *mockDispatcher) byEvent(event string) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Notification
	for _, n := range d.notes {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func (d *mockDispatcher) waitFor(t *testing.T, event string, count int) []Notification {
	t.Helper()
	require.Eventually(t, func() bool { return len(d.byEvent(event)) >= count }, 2*time.Second, 5*time.Millisecond,
		"waiting for %d %q notifications", count, event)
	return d.byEvent(event)
}

type fakeGenerator struct {
	err error
}

func (g fakeGenerator) Generate(_ context.Context, count int, _ []string) ([]trivia.Question, error) {
	if g.err != nil {
		return nil, g.err
	}
	qs := make([]trivia.Question, count)
	for i := range qs {
		qs[i] = trivia.Question{Category: "General", Prompt: fmt.Sprintf("Q%d", i+1), Answer: fmt.Sprintf("A%d", i+1)}
	}
	return qs, nil
}

type failingJudge struct{}

func (failingJudge) Judge(context.Context, trivia.JudgeRequest) (bool, error) {
	return false, errors.New("model unavailable")
}

type memoryRecorder struct {
	mu   sync.Mutex
	recs []history.GameRecord
}

func (r *memoryRecorder) Record(_ context.Context, rec history.GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *memoryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

type harness struct {
	svc      *Service
	disp     *mockDispatcher
	recorder *memoryRecorder
	issuer   *auth.Issuer
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	issuer, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	h := &harness{disp: &mockDispatcher{}, recorder: &memoryRecorder{}, issuer: issuer}
	opts := Options{
		Store:           game.NewLobbyStore(),
		Issuer:          issuer,
		Questions:       fakeGenerator{},
		Judge:           trivia.NormalizedJudge{},
		Recorder:        h.recorder,
		Dispatcher:      h.disp,
		Logger:          logger,
		DisconnectGrace: time.Minute,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.svc = NewService(opts)
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) lobby(t *testing.T, code string) *game.Lobby {
	t.Helper()
	l, ok := h.svc.store.GetLobby(code)
	require.True(t, ok)
	return l
}

// readyGame creates Alice's lobby, joins Bob, makes both captains, sets the
// round count and starts the game, waiting until the bank is installed.
func (h *harness) readyGame(t *testing.T, rounds int) (code, alice, bob string) {
	t.Helper()
	created, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	code, alice = created.Lobby.Code, created.Token

	joined, err := h.svc.JoinLobby("Bob", code)
	require.NoError(t, err)
	bob = joined.Token

	_, err = h.svc.TeamSelect(alice, "blue", true)
	require.NoError(t, err)
	_, err = h.svc.TeamSelect(bob, "red", true)
	require.NoError(t, err)
	_, err = h.svc.UpdateSettings(alice, game.SettingsPatch{Rounds: &rounds})
	require.NoError(t, err)

	_, err = h.svc.StartGame(alice)
	require.NoError(t, err)
	h.disp.waitFor(t, EventLobbyUpdated, 1)
	return code, alice, bob
}

func TestAliceAndBobPlayAFullGame(t *testing.T) {
	h := newHarness(t, nil)

	created, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)
	code := created.Lobby.Code
	assert.Equal(t, game.TeamBlue, created.Player.Team)

	joined, err := h.svc.JoinLobby("Bob", code)
	require.NoError(t, err)
	assert.Equal(t, game.TeamRed, joined.Player.Team, "Bob lands on the smaller team")
	require.Len(t, h.disp.byEvent(EventPlayerJoined), 1)

	_, err = h.svc.StartGame(created.Token)
	assert.ErrorIs(t, err, game.ErrMissingCaptain)

	_, err = h.svc.TeamSelect(created.Token, "blue", true)
	require.NoError(t, err)
	_, err = h.svc.StartGame(created.Token)
	assert.ErrorIs(t, err, game.ErrMissingCaptain)
	_, err = h.svc.TeamSelect(joined.Token, "red", true)
	require.NoError(t, err)

	rounds := 2
	_, err = h.svc.UpdateSettings(created.Token, game.SettingsPatch{Rounds: &rounds})
	require.NoError(t, err)

	started, err := h.svc.StartGame(created.Token)
	require.NoError(t, err)
	assert.Equal(t, game.PhasePlaying, started.Lobby.GamePhase)
	require.Len(t, h.disp.byEvent(EventGameStarted), 1)
	h.disp.waitFor(t, EventLobbyUpdated, 1)

	// Round 1: Alice is right, Bob's steal fails.
	r1, err := h.svc.AdvanceRound(created.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Round.RoundNumber)
	assert.Equal(t, "Q1", r1.Round.Question)
	assert.False(t, r1.Round.Deadline.IsZero())

	ack, err := h.svc.SubmitAnswer(created.Token, false, "a1", "blue", 1)
	require.NoError(t, err)
	assert.Empty(t, ack.Round.CorrectAnswer, "submitter only gets an acknowledgement")
	_, err = h.svc.SubmitAnswer(joined.Token, true, "", "red", 1)
	require.NoError(t, err)

	res := h.disp.waitFor(t, EventRoundResults, 1)[0].Payload.(game.RoundResults)
	assert.Equal(t, game.WinnerBlue, res.Winner)
	assert.Equal(t, game.Scores{Blue: 2}, res.Scores)
	assert.False(t, res.GameComplete)

	// Round 2: only Bob is right.
	_, err = h.svc.AdvanceRound(created.Token)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(joined.Token, false, "A2", "red", 2)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(created.Token, false, "nope", "blue", 2)
	require.NoError(t, err)

	res = h.disp.waitFor(t, EventRoundResults, 2)[1].Payload.(game.RoundResults)
	assert.Equal(t, game.WinnerRed, res.Winner)
	assert.Equal(t, game.Scores{Blue: 2, Red: 1}, res.Scores)
	assert.True(t, res.GameComplete)

	h.disp.waitFor(t, EventGameEnded, 1)
	got, err := h.svc.GetLobby(code, created.Token)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseEnded, got.Lobby.GamePhase)
	require.Eventually(t, func() bool { return h.recorder.count() == 1 }, time.Second, 5*time.Millisecond)

	_, err = h.svc.AdvanceRound(created.Token)
	assert.ErrorIs(t, err, game.ErrGameNotPlaying)

	back, err := h.svc.ReturnToLobby(created.Token)
	require.NoError(t, err)
	assert.Equal(t, game.PhasePregame, back.Lobby.GamePhase)
	assert.NotNil(t, back.Lobby.Captains.Blue, "captains survive a return to lobby")
	require.Len(t, h.disp.byEvent(EventLobbyReturned), 1)
}

func TestSubmitRules(t *testing.T) {
	h := newHarness(t, nil)
	code, alice, bob := h.readyGame(t, 3)

	_, err := h.svc.SubmitAnswer(alice, false, "A1", "blue", 1)
	assert.ErrorIs(t, err, game.ErrRoundMismatch, "no round open yet")

	_, err = h.svc.AdvanceRound(alice)
	require.NoError(t, err)
	_, err = h.svc.AdvanceRound(alice)
	assert.ErrorIs(t, err, game.ErrRoundInProgress)

	_, err = h.svc.SubmitAnswer(bob, false, "A1", "blue", 1)
	assert.ErrorIs(t, err, game.ErrNotCaptain)
	_, err = h.svc.SubmitAnswer(alice, false, "A1", "green", 1)
	assert.ErrorIs(t, err, game.ErrInvalidTeam)
	_, err = h.svc.SubmitAnswer(alice, false, "A1", "blue", 2)
	assert.ErrorIs(t, err, game.ErrRoundMismatch)

	_, err = h.svc.SubmitAnswer(alice, false, "first", "blue", 1)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(alice, false, "second", "blue", 1)
	assert.ErrorIs(t, err, game.ErrAlreadySubmitted)

	l := h.lobby(t, code)
	l.Mu.Lock()
	assert.Equal(t, "first", l.CurrentRound().Blue.Answer)
	assert.Equal(t, game.RoundAwaitingSubmissions, l.CurrentRound().State)
	l.Mu.Unlock()

	require.Len(t, h.disp.byEvent(EventTeamAnswerSubmitted), 1)
	assert.Empty(t, h.disp.byEvent(EventAnswerProcessing))
}

func TestRoundDeadlineResolvesWithMissingAnswer(t *testing.T) {
	h := newHarness(t, nil)
	code, alice, _ := h.readyGame(t, 1)

	_, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(alice, false, "A1", "blue", 1)
	require.NoError(t, err)

	l := h.lobby(t, code)
	l.Mu.Lock()
	gameID := l.GameID
	l.Mu.Unlock()

	h.svc.roundDeadline(code, gameID, 1)
	h.svc.roundDeadline(code, gameID, 1)

	require.Len(t, h.disp.byEvent(EventRoundTimeUp), 1, "a second firing is ignored")
	res := h.disp.waitFor(t, EventRoundResults, 1)[0].Payload.(game.RoundResults)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Red.Submitted)
	assert.Equal(t, game.WinnerBlue, res.Winner)
	assert.Equal(t, 1, res.BluePoints)
	assert.True(t, res.GameComplete)
}

func TestJudgeFailureCountsAsIncorrect(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Judge = failingJudge{} })
	_, alice, bob := h.readyGame(t, 1)

	_, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(alice, false, "A1", "blue", 1)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(bob, true, "", "red", 1)
	require.NoError(t, err)

	res := h.disp.waitFor(t, EventRoundResults, 1)[0].Payload.(game.RoundResults)
	assert.Equal(t, game.WinnerRed, res.Winner, "steal pays out against an unjudged answer")
	assert.Equal(t, 2, res.RedPoints)
}

func TestGenerationFailureUsesPlaceholders(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Questions = fakeGenerator{err: errors.New("quota")} })
	_, alice, _ := h.readyGame(t, 3)

	r, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)
	assert.Equal(t, "Question 1 (Failed to generate)", r.Round.Question)
	assert.Equal(t, 3, r.Lobby.GameState.TotalRounds)
}

func TestStaleJudgementIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	code, alice, _ := h.readyGame(t, 2)

	_, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)

	h.svc.completeRound(code, uuid.New(), 1, nil)
	assert.Empty(t, h.disp.byEvent(EventRoundResults))

	_, err = h.svc.ReturnToLobby(alice)
	require.NoError(t, err)
	l := h.lobby(t, code)
	l.Mu.Lock()
	gameID := l.GameID
	l.Mu.Unlock()
	h.svc.roundDeadline(code, gameID, 1)
	assert.Empty(t, h.disp.byEvent(EventRoundTimeUp))
}

func TestTokenChecks(t *testing.T) {
	h := newHarness(t, nil)
	a, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	b, err := h.svc.CreateLobby("Zed")
	require.NoError(t, err)

	_, err = h.svc.GetLobby(a.Lobby.Code, "")
	assert.ErrorIs(t, err, game.ErrUnauthorized)
	_, err = h.svc.GetLobby(a.Lobby.Code, "not-a-token")
	assert.ErrorIs(t, err, game.ErrUnauthorized)
	_, err = h.svc.GetLobby(a.Lobby.Code, b.Token)
	assert.ErrorIs(t, err, game.ErrForbidden)

	got, err := h.svc.GetLobby(a.Lobby.Code, a.Token)
	require.NoError(t, err)
	assert.Equal(t, a.Lobby.Code, got.Lobby.Code)

	_, err = h.svc.JoinLobby("Bob", "NOPE00")
	assert.ErrorIs(t, err, game.ErrLobbyNotFound)

	other, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue(a.Player.ID, "Alice", a.Lobby.Code, true)
	require.NoError(t, err)
	_, err = h.svc.StartGame(forged)
	assert.ErrorIs(t, err, game.ErrUnauthorized)
}

func TestKickAndLeave(t *testing.T) {
	h := newHarness(t, nil)
	a, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	code := a.Lobby.Code
	bob, err := h.svc.JoinLobby("Bob", code)
	require.NoError(t, err)
	cat, err := h.svc.JoinLobby("Cat", code)
	require.NoError(t, err)

	_, err = h.svc.KickPlayer(bob.Token, cat.Player.ID)
	assert.ErrorIs(t, err, game.ErrNotHost)
	_, err = h.svc.KickPlayer(a.Token, a.Player.ID)
	assert.ErrorIs(t, err, game.ErrCannotKickHost)

	res, err := h.svc.KickPlayer(a.Token, bob.Player.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Lobby.PlayerCount)

	kicked := h.disp.byEvent(EventYouWereKicked)
	require.Len(t, kicked, 1)
	assert.Equal(t, []uuid.UUID{bob.Player.ID}, kicked[0].Recipients)
	require.Len(t, h.disp.byEvent(EventPlayerKicked), 1)
	_, bound := h.svc.store.LobbyCodeFor(bob.Player.ID)
	assert.False(t, bound)

	_, err = h.svc.GetLobby(code, bob.Token)
	assert.ErrorIs(t, err, game.ErrPlayerNotFound, "a kicked player's token no longer works")

	_, err = h.svc.LeaveLobby(cat.Token)
	require.NoError(t, err)
	require.Len(t, h.disp.byEvent(EventPlayerLeft), 1)

	ended, err := h.svc.LeaveLobby(a.Token)
	require.NoError(t, err)
	assert.True(t, ended.LobbyEnded)
	notes := h.disp.byEvent(EventLobbyEnded)
	require.Len(t, notes, 1)
	assert.Equal(t, reasonHostLeft, notes[0].Payload.(map[string]any)["reason"])
	assert.Equal(t, 0, h.svc.store.Len())

	_, err = h.svc.GetLobby(code, a.Token)
	assert.ErrorIs(t, err, game.ErrLobbyNotFound)
}

func TestEndLobbyHostOnly(t *testing.T) {
	h := newHarness(t, nil)
	a, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	bob, err := h.svc.JoinLobby("Bob", a.Lobby.Code)
	require.NoError(t, err)

	_, err = h.svc.EndLobby(bob.Token)
	assert.ErrorIs(t, err, game.ErrNotHost)

	res, err := h.svc.EndLobby(a.Token)
	require.NoError(t, err)
	assert.True(t, res.LobbyEnded)
	notes := h.disp.byEvent(EventLobbyEnded)
	require.Len(t, notes, 1)
	assert.Equal(t, reasonHostEnded, notes[0].Payload.(map[string]any)["reason"])
}

func TestTeamChatReachesOnlyTeammates(t *testing.T) {
	h := newHarness(t, nil)
	a, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	code := a.Lobby.Code
	bob, err := h.svc.JoinLobby("Bob", code)
	require.NoError(t, err)
	cat, err := h.svc.JoinLobby("Cat", code)
	require.NoError(t, err)
	require.Equal(t, game.TeamBlue, cat.Player.Team)

	require.NoError(t, h.svc.SendChat(a.Token, "psst", ChatScopeTeam))
	require.NoError(t, h.svc.SendChat(bob.Token, "hello all", ""))
	assert.ErrorIs(t, h.svc.SendChat(bob.Token, "   ", ChatScopeGame), game.ErrInvalidMessage)
	assert.ErrorIs(t, h.svc.SendChat(bob.Token, "hi", "whisper"), game.ErrInvalidMessage)

	chats := h.disp.byEvent(EventChatMessage)
	require.Len(t, chats, 2)
	assert.ElementsMatch(t, []uuid.UUID{a.Player.ID, cat.Player.ID}, chats[0].Recipients)
	assert.Nil(t, chats[1].Recipients)
	assert.Equal(t, ChatScopeGame, chats[1].Payload.(map[string]any)["chatType"])
}

func TestReconnectWithinGraceKeepsSeat(t *testing.T) {
	h := newHarness(t, nil)
	_, alice, bob := h.readyGame(t, 1)

	claims, _, err := h.svc.Connect(bob, nil)
	require.NoError(t, err)
	h.svc.Disconnect(claims.LobbyCode, claims.PlayerID)
	require.Len(t, h.disp.byEvent(EventPlayerDisconnected), 1)

	res, err := h.svc.GetLobby(claims.LobbyCode, alice)
	require.NoError(t, err)
	require.Len(t, res.Lobby.RedTeam, 1)
	assert.False(t, res.Lobby.RedTeam[0].IsConnected)

	_, res, err = h.svc.Connect(bob, nil)
	require.NoError(t, err)
	require.Len(t, h.disp.byEvent(EventPlayerReconnected), 1)
	assert.True(t, res.Player.IsCaptain)
	assert.True(t, res.Player.IsConnected)
	assert.Equal(t, game.TeamRed, res.Player.Team)
}

func TestGraceExpiryRemovesPlayer(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DisconnectGrace = 20 * time.Millisecond })
	a, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	code := a.Lobby.Code
	bob, err := h.svc.JoinLobby("Bob", code)
	require.NoError(t, err)
	_, err = h.svc.TeamSelect(bob.Token, "red", true)
	require.NoError(t, err)

	_, _, err = h.svc.Connect(bob.Token, nil)
	require.NoError(t, err)
	h.svc.Disconnect(code, bob.Player.ID)

	left := h.disp.waitFor(t, EventPlayerLeft, 1)
	assert.Equal(t, bob.Player.ID, left[0].Payload.(map[string]any)["player"].(game.PlayerView).ID)

	res, err := h.svc.GetLobby(code, a.Token)
	require.NoError(t, err)
	assert.Empty(t, res.Lobby.RedTeam)
	assert.Nil(t, res.Lobby.Captains.Red)
}

func TestHostExpiryEndsLobby(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DisconnectGrace = 20 * time.Millisecond })
	a, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)

	_, _, err = h.svc.Connect(a.Token, nil)
	require.NoError(t, err)
	h.svc.Disconnect(a.Lobby.Code, a.Player.ID)

	h.disp.waitFor(t, EventLobbyEnded, 1)
	require.Eventually(t, func() bool { return h.svc.store.Len() == 0 }, time.Second, 5*time.Millisecond)
}
