// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes sent to lobby clients.
const (
	BadSubprotocolError   = 3000 // Client connected without the lobby subprotocol.
	InvalidAuthTokenError = 3001 // Token was missing, invalid, expired, or no longer maps to a seat.
	PlayerRemovedError    = 3002 // Player left or was kicked; the token is dead.
	LobbyEndedError       = 3003 // Lobby was torn down.
)
