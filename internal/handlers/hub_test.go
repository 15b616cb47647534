// internal/handlers/hub_test.go
package handlers

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHubDispatchRespectsRecipients(t *testing.T) {
	hub := NewHub(quietLogger())
	alice := newLobbyConnection("ABCDEF", uuid.New(), "Alice")
	bob := newLobbyConnection("ABCDEF", uuid.New(), "Bob")
	stranger := newLobbyConnection("ZZZZZZ", uuid.New(), "Eve")
	hub.Add(alice)
	hub.Add(bob)
	hub.Add(stranger)

	hub.Dispatch(
		session.Notification{LobbyCode: "ABCDEF", Event: "everyone"},
		session.Notification{LobbyCode: "ABCDEF", Event: "bob-only", Recipients: []uuid.UUID{bob.PlayerID}},
	)

	require.Len(t, alice.OutChan, 1)
	assert.Equal(t, "everyone", (<-alice.OutChan).Type)
	require.Len(t, bob.OutChan, 2)
	assert.Equal(t, "everyone", (<-bob.OutChan).Type)
	assert.Equal(t, "bob-only", (<-bob.OutChan).Type)
	assert.Empty(t, stranger.OutChan)
}

func TestHubDropsWhenOutboxFull(t *testing.T) {
	hub := NewHub(quietLogger())
	c := newLobbyConnection("ABCDEF", uuid.New(), "Alice")
	hub.Add(c)

	for i := 0; i < outboxSize+5; i++ {
		hub.Dispatch(session.Notification{LobbyCode: "ABCDEF", Event: "tick"})
	}
	assert.Len(t, c.OutChan, outboxSize)
}

func TestHubDisconnect(t *testing.T) {
	hub := NewHub(quietLogger())
	alice := newLobbyConnection("ABCDEF", uuid.New(), "Alice")
	bob := newLobbyConnection("ABCDEF", uuid.New(), "Bob")
	hub.Add(alice)
	hub.Add(bob)

	hub.Disconnect("ABCDEF", bob.PlayerID, "kicked")
	assert.Equal(t, PlayerRemovedError, bob.closeCode)
	assert.Equal(t, "kicked", bob.reason)
	select {
	case <-alice.closing:
		t.Fatal("alice should still be connected")
	default:
	}

	hub.Disconnect("ABCDEF", uuid.Nil, "Host ended the lobby")
	<-alice.closing
	assert.Equal(t, LobbyEndedError, alice.closeCode)
	// first close wins
	assert.Equal(t, PlayerRemovedError, bob.closeCode)

	hub.Remove(alice)
	hub.Remove(bob)
	assert.Zero(t, hub.Count("ABCDEF"))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=query", nil)
	r.Header.Set("Authorization", "Bearer header")
	r.Header.Set("Cookie", "theme=dark; bluff_token=cookie")
	assert.Equal(t, "header", tokenFromRequest(r))

	r.Header.Del("Authorization")
	assert.Equal(t, "query", tokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Cookie", "theme=dark; bluff_token=cookie")
	assert.Equal(t, "cookie", tokenFromRequest(r))

	assert.Empty(t, tokenFromRequest(httptest.NewRequest("GET", "/ws", nil)))
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t, []string{"*", "play.example.com", "localhost:5173"},
		originHosts([]string{"*", "https://play.example.com", "http://localhost:5173"}))
}
