// internal/session/notify.go
package session

import (
	"github.com/google/uuid"
)

// Push event names.
const (
	EventPlayerJoined        = "player-joined"
	EventPlayerLeft          = "player-left"
	EventPlayerDisconnected  = "player-disconnected"
	EventPlayerReconnected   = "player-reconnected"
	EventPlayerTeamChanged   = "player-team-changed"
	EventPlayerKicked        = "player-kicked"
	EventYouWereKicked       = "you-were-kicked"
	EventLobbyUpdated        = "lobby-updated"
	EventLobbyEnded          = "lobby-ended"
	EventSettingsUpdated     = "settings-updated"
	EventGameStarted         = "game-started"
	EventRoundStarted        = "round-started"
	EventTeamAnswerSubmitted = "team-answer-submitted"
	EventAnswerProcessing    = "answer-processing-started"
	EventRoundTimeUp         = "round-timeup"
	EventRoundResults        = "round-results"
	EventGameEnded           = "game-ended"
	EventLobbyReturned       = "lobby-returned"
	EventChatMessage         = "chat-message"
)

const (
	reasonHostLeft        = "Host left the lobby"
	reasonHostEnded       = "Host ended the lobby"
	reasonHostTimedOut    = "Host disconnected"
	messageKicked         = "You were kicked from the lobby"
	updateTypeRoundsReady = "rounds-ready"

	ChatScopeGame = "game"
	ChatScopeTeam = "team"
	maxChatLength = 500
)

// Notification is one push message. Recipients restricts delivery to the
// listed players; nil means every connection in the lobby.
type Notification struct {
	LobbyCode  string
	Recipients []uuid.UUID
	Event      string
	Payload    any
}

// Dispatcher delivers notifications to live connections. Dispatch is called
// with the lobby lock held: it must not block on slow clients and must not
// call back into the Service.
type Dispatcher interface {
	Dispatch(ns ...Notification)
	// Disconnect closes the connections of playerID in code, or of every
	// player when playerID is uuid.Nil.
	Disconnect(code string, playerID uuid.UUID, reason string)
}

// batch collects the effects of one command while the lobby lock is held.
// Notes are dispatched before unlock; after funcs run once it is released.
type batch struct {
	code  string
	notes []Notification
	after []func()
}

func (b *batch) lobby(event string, payload any) {
	b.notes = append(b.notes, Notification{LobbyCode: b.code, Event: event, Payload: payload})
}

func (b *batch) players(ids []uuid.UUID, event string, payload any) {
	b.notes = append(b.notes, Notification{LobbyCode: b.code, Recipients: ids, Event: event, Payload: payload})
}

func (b *batch) player(id uuid.UUID, event string, payload any) {
	b.players([]uuid.UUID{id}, event, payload)
}

func (b *batch) then(f func()) {
	b.after = append(b.after, f)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(...Notification)             {}
func (nopDispatcher) Disconnect(string, uuid.UUID, string) {}
