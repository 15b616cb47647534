// internal/session/concurrency_test.go
package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/blufftrivia/internal/auth"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingJudge grades like NormalizedJudge and remembers every submission it saw.
type countingJudge struct {
	mu        sync.Mutex
	submitted []string
}

func (j *countingJudge) Judge(ctx context.Context, req trivia.JudgeRequest) (bool, error) {
	j.mu.Lock()
	j.submitted = append(j.submitted, req.Submitted)
	j.mu.Unlock()
	return trivia.NormalizedJudge{}.Judge(ctx, req)
}

func (j *countingJudge) seen() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.submitted...)
}

// stallingDispatcher holds the first team change it sees until release is closed.
type stallingDispatcher struct {
	*mockDispatcher
	once    sync.Once
	stalled chan struct{}
	release chan struct{}
}

func (d *stallingDispatcher) Dispatch(ns ...Notification) {
	for _, n := range ns {
		if n.Event == EventPlayerTeamChanged {
			d.once.Do(func() {
				close(d.stalled)
				<-d.release
			})
		}
	}
	d.mockDispatcher.Dispatch(ns...)
}

// submitTogether fires both captains' submissions at the same moment.
func submitTogether(t *testing.T, h *harness, alice, bob string, aliceSteal bool, aliceAnswer string, bobSteal bool, bobAnswer string) {
	t.Helper()
	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, err := h.svc.SubmitAnswer(alice, aliceSteal, aliceAnswer, "blue", 1)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		<-start
		_, err := h.svc.SubmitAnswer(bob, bobSteal, bobAnswer, "red", 1)
		errs <- err
	}()
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestConcurrentSubmissionsResolveOnce(t *testing.T) {
	judge := &countingJudge{}
	h := newHarness(t, func(o *Options) { o.Judge = judge })
	_, alice, bob := h.readyGame(t, 1)
	_, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)

	submitTogether(t, h, alice, bob, false, "A1", false, "wrong")

	res := h.disp.waitFor(t, EventRoundResults, 1)[0].Payload.(game.RoundResults)
	assert.Equal(t, game.WinnerBlue, res.Winner)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.disp.byEvent(EventRoundResults), 1)
	assert.Len(t, h.disp.byEvent(EventAnswerProcessing), 1)
	assert.Len(t, h.disp.byEvent(EventTeamAnswerSubmitted), 2)
	assert.ElementsMatch(t, []string{"A1", "wrong"}, judge.seen(), "one judgement per answering team")
}

func TestStealingTeamIsNeverJudged(t *testing.T) {
	judge := &countingJudge{}
	h := newHarness(t, func(o *Options) { o.Judge = judge })
	_, alice, bob := h.readyGame(t, 1)
	_, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)

	submitTogether(t, h, alice, bob, false, "A1", true, "")

	res := h.disp.waitFor(t, EventRoundResults, 1)[0].Payload.(game.RoundResults)
	assert.Equal(t, game.Scores{Blue: 2}, res.Scores)
	assert.Equal(t, []string{"A1"}, judge.seen())
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	h := newHarness(t, nil)
	created, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	code := created.Lobby.Code

	const attempts = 40
	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.JoinLobby(fmt.Sprintf("P%02d", i), code)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	joined := 0
	for err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.ErrorIs(t, err, game.ErrLobbyFull)
	}
	assert.Equal(t, game.DefaultMaxPlayers-1, joined)

	res, err := h.svc.GetLobby(code, created.Token)
	require.NoError(t, err)
	assert.Equal(t, game.DefaultMaxPlayers, res.Lobby.PlayerCount)
	assert.LessOrEqual(t, res.Lobby.BlueCount, game.DefaultMaxTeamSize)
	assert.LessOrEqual(t, res.Lobby.RedCount, game.DefaultMaxTeamSize)
	assert.Len(t, h.disp.byEvent(EventPlayerJoined), game.DefaultMaxPlayers-1)
}

func TestEventsDeliveredInApplyOrder(t *testing.T) {
	h := newHarness(t, nil)
	created, err := h.svc.CreateLobby("Alice")
	require.NoError(t, err)
	code := created.Lobby.Code
	bob, err := h.svc.JoinLobby("Bob", code)
	require.NoError(t, err)
	carl, err := h.svc.JoinLobby("Carl", code)
	require.NoError(t, err)
	_, err = h.svc.TeamSelect(bob.Token, "red", false)
	if err != nil {
		require.ErrorIs(t, err, game.ErrAlreadyOnTeam)
	}
	_, err = h.svc.TeamSelect(carl.Token, "blue", false)
	if err != nil {
		require.ErrorIs(t, err, game.ErrAlreadyOnTeam)
	}

	sd := &stallingDispatcher{
		mockDispatcher: &mockDispatcher{},
		stalled:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	h.svc.SetDispatcher(sd)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.svc.TeamSelect(bob.Token, "blue", false)
		assert.NoError(t, err)
	}()
	<-sd.stalled
	go func() {
		defer wg.Done()
		_, err := h.svc.TeamSelect(carl.Token, "red", false)
		assert.NoError(t, err)
	}()
	time.Sleep(30 * time.Millisecond)
	close(sd.release)
	wg.Wait()

	changes := sd.byEvent(EventPlayerTeamChanged)
	require.Len(t, changes, 2)
	var blue []int
	for _, n := range changes {
		blue = append(blue, n.Payload.(map[string]any)["lobby"].(*game.LobbySnapshot).BlueCount)
	}
	assert.Equal(t, []int{3, 2}, blue, "snapshots arrive in the order they were applied")

	res, err := h.svc.GetLobby(code, created.Token)
	require.NoError(t, err)
	assert.Equal(t, blue[len(blue)-1], res.Lobby.BlueCount)
}

func TestConnectBindRunsBeforeReconnectBroadcast(t *testing.T) {
	h := newHarness(t, nil)
	_, _, bob := h.readyGame(t, 1)

	claims, _, err := h.svc.Connect(bob, nil)
	require.NoError(t, err)
	h.svc.Disconnect(claims.LobbyCode, claims.PlayerID)
	l := h.lobby(t, claims.LobbyCode)

	var (
		called      bool
		lockHeld    bool
		seenBefore  int
		boundPlayer string
	)
	_, res, err := h.svc.Connect(bob, func(c *auth.Claims, r *Result) {
		called = true
		lockHeld = !l.Mu.TryLock()
		if !lockHeld {
			l.Mu.Unlock()
		}
		seenBefore = len(h.disp.byEvent(EventPlayerReconnected))
		boundPlayer = r.Player.Name
		assert.Equal(t, claims.PlayerID, c.PlayerID)
	})
	require.NoError(t, err)

	require.True(t, called)
	assert.True(t, lockHeld, "bind runs with the lobby locked")
	assert.Zero(t, seenBefore, "registration happens before the reconnect is broadcast")
	assert.Equal(t, "Bob", boundPlayer)
	assert.Equal(t, "Bob", res.Player.Name)
	assert.Len(t, h.disp.byEvent(EventPlayerReconnected), 1)
}

func TestNoBackgroundWorkAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	code, alice, _ := h.readyGame(t, 1)
	_, err := h.svc.AdvanceRound(alice)
	require.NoError(t, err)

	l := h.lobby(t, code)
	l.Mu.Lock()
	gameID := l.GameID
	l.Mu.Unlock()

	h.svc.Close()
	assert.False(t, h.svc.background(func(context.Context) { t.Error("background work ran after Close") }))

	// A deadline firing late resolves the round but starts no judging.
	h.svc.roundDeadline(code, gameID, 1)
	require.Len(t, h.disp.byEvent(EventRoundTimeUp), 1)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, h.disp.byEvent(EventRoundResults))
}
