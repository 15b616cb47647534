// internal/history/history_test.go
package history

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanQueue struct {
	ch chan GameRecord
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) (GameRecord, error) {
	select {
	case rec, ok := <-q.ch:
		if !ok {
			return GameRecord{}, ErrEmpty
		}
		if rec.LobbyCode == "BROKEN" {
			return GameRecord{}, ErrMalformed
		}
		return rec, nil
	case <-time.After(10 * time.Millisecond):
		return GameRecord{}, ErrEmpty
	case <-ctx.Done():
		return GameRecord{}, ctx.Err()
	}
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]GameRecord
	fail    bool
}

func (s *memorySink) RecordBatch(_ context.Context, recs []GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]GameRecord(nil), recs...))
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestHistorianBatchesAndFlushesOnShutdown(t *testing.T) {
	q := &chanQueue{ch: make(chan GameRecord, 8)}
	sink := &memorySink{}
	h := NewHistorian(q, sink, 2, time.Hour, quietLogger())

	q.ch <- GameRecord{GameID: uuid.New(), LobbyCode: "AAAAAA"}
	q.ch <- GameRecord{LobbyCode: "BROKEN"}
	q.ch <- GameRecord{GameID: uuid.New(), LobbyCode: "BBBBBB"}
	q.ch <- GameRecord{GameID: uuid.New(), LobbyCode: "CCCCCC"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.total() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 3, sink.total(), "remaining record flushed on shutdown")
	assert.Len(t, sink.batches[0], 2)
}

func TestHistorianKeepsBatchOnFailure(t *testing.T) {
	sink := &memorySink{fail: true}
	h := NewHistorian(&chanQueue{ch: make(chan GameRecord)}, sink, 1, time.Hour, quietLogger())
	h.batch = append(h.batch, GameRecord{LobbyCode: "AAAAAA"})

	h.flush(context.Background())
	assert.Len(t, h.batch, 1)

	sink.fail = false
	h.flush(context.Background())
	assert.Empty(t, h.batch)
	assert.Equal(t, 1, sink.total())
}

// downQueue fails every pop, like a Redis that is unreachable.
type downQueue struct {
	mu   sync.Mutex
	pops int
}

func (q *downQueue) Pop(context.Context, time.Duration) (GameRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pops++
	return GameRecord{}, errors.New("dial tcp: connection refused")
}

func (q *downQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pops
}

func TestHistorianBacksOffWhenQueueIsDown(t *testing.T) {
	q := &downQueue{}
	h := NewHistorian(q, &memorySink{}, 1, time.Hour, quietLogger())
	h.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	assert.GreaterOrEqual(t, q.count(), 1)
	assert.LessOrEqual(t, q.count(), 4, "pops are spaced by the retry delay")
}

func TestFromLobbyUnsafe(t *testing.T) {
	l, err := game.NewLobby("ABC123", "Alice", time.Now())
	require.NoError(t, err)
	bob, err := l.JoinUnsafe("Bob", time.Now())
	require.NoError(t, err)
	require.NoError(t, l.AssignTeamUnsafe(l.Host, game.TeamBlue, true))
	require.NoError(t, l.AssignTeamUnsafe(bob, game.TeamRed, true))
	gameID, err := l.StartUnsafe(l.Host.ID, time.Now())
	require.NoError(t, err)
	require.True(t, l.InstallRoundsUnsafe(gameID, []trivia.Question{{Prompt: "Q", Answer: "A"}}))
	_, err = l.AdvanceRoundUnsafe(l.Host.ID, time.Now())
	require.NoError(t, err)
	_, err = l.SubmitAnswerUnsafe(l.Host.ID, true, "", game.TeamBlue, 1)
	require.NoError(t, err)
	_, err = l.SubmitAnswerUnsafe(bob.ID, false, "B", game.TeamRed, 1)
	require.NoError(t, err)
	_, err = l.CompleteRoundUnsafe(gameID, 1, map[game.Team]bool{game.TeamRed: false}, time.Now())
	require.NoError(t, err)

	rec := FromLobbyUnsafe(l)
	assert.Equal(t, gameID, rec.GameID)
	assert.Equal(t, game.WinnerBlue, rec.Winner)
	assert.Equal(t, game.Scores{Blue: 2}, rec.Scores)
	require.Len(t, rec.Rounds, 1)
	assert.True(t, rec.Rounds[0].BlueSteal)
	assert.Equal(t, "B", rec.Rounds[0].RedAnswer)
	assert.Equal(t, []PlayerRecord{{Name: "Alice", IsCaptain: true}}, rec.BlueTeam)
}

// TestStoreRoundTrip needs a live Postgres; set BLUFF_TEST_DATABASE_URL to run it.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("BLUFF_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BLUFF_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	store := NewStore(pool)
	require.NoError(t, store.Migrate(ctx))

	rec := GameRecord{
		GameID:    uuid.New(),
		LobbyCode: "ABC123",
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
		Settings:  game.DefaultSettings(),
		Scores:    game.Scores{Blue: 1},
		Winner:    game.WinnerBlue,
		Rounds:    []RoundRecord{{RoundNumber: 1, Question: "Q", Answer: "A", Winner: "blue", BluePoints: 1}},
	}
	require.NoError(t, store.Record(ctx, rec))
	require.NoError(t, store.Record(ctx, rec), "re-recording replaces the game")

	var rounds int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM game_rounds WHERE game_id = $1`, rec.GameID).Scan(&rounds))
	assert.Equal(t, 1, rounds)
}
