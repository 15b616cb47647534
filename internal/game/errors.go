// internal/game/errors.go
package game

// ErrorKind classifies a rejected command so transports can map it to a status.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a rejected command. Values are compared by identity with errors.Is.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// validation
var (
	ErrInvalidName     = newError(KindValidation, "invalid_name", "player name must be between 1 and 10 characters")
	ErrInvalidTeam     = newError(KindValidation, "invalid_team", "team must be blue or red")
	ErrInvalidSettings = newError(KindValidation, "invalid_settings", "settings out of bounds")
	ErrInvalidMessage  = newError(KindValidation, "invalid_message", "message must be between 1 and 500 characters")
	ErrInvalidAnswer   = newError(KindValidation, "invalid_answer", "answer is too long")
)

// authorization
var (
	ErrUnauthorized   = newError(KindUnauthorized, "unauthorized", "missing, invalid or expired token")
	ErrForbidden      = newError(KindForbidden, "forbidden", "token does not grant access to this lobby")
	ErrNotHost        = newError(KindForbidden, "not_host", "only the host can do that")
	ErrNotCaptain     = newError(KindForbidden, "not_captain", "only the team captain can submit an answer")
	ErrCannotKickHost = newError(KindForbidden, "cannot_kick_host", "the host cannot be kicked")
)

// state conflicts
var (
	ErrLobbyFull          = newError(KindConflict, "lobby_full", "lobby is full")
	ErrTeamFull           = newError(KindConflict, "team_full", "team is full")
	ErrAlreadyOnTeam      = newError(KindConflict, "already_on_team", "player is already on that team")
	ErrCaptaincyConflict  = newError(KindConflict, "captain_exists", "team already has a captain")
	ErrGameAlreadyStarted = newError(KindConflict, "game_already_started", "game has already started")
	ErrMissingCaptain     = newError(KindConflict, "missing_captain", "both teams need a captain")
	ErrGameNotPlaying     = newError(KindConflict, "game_not_playing", "no game in progress")
	ErrRoundsNotReady     = newError(KindConflict, "rounds_not_ready", "questions are still being prepared")
	ErrRoundInProgress    = newError(KindConflict, "round_in_progress", "current round has not been resolved")
	ErrNoRoundsRemaining  = newError(KindConflict, "no_rounds_remaining", "no rounds remaining")
	ErrRoundMismatch      = newError(KindConflict, "round_mismatch", "round number does not match the current round")
	ErrRoundClosed        = newError(KindConflict, "round_closed", "round is not accepting answers")
	ErrAlreadySubmitted   = newError(KindConflict, "already_submitted", "team has already submitted for this round")
	ErrAlreadyInLobby     = newError(KindConflict, "already_in_lobby", "lobby is already in pregame")
	ErrStaleRound         = newError(KindConflict, "stale_round", "round is no longer current")
)

// not found
var (
	ErrLobbyNotFound  = newError(KindNotFound, "lobby_not_found", "lobby not found")
	ErrPlayerNotFound = newError(KindNotFound, "player_not_found", "player not found in lobby")
	ErrTargetNotFound = newError(KindNotFound, "target_not_found", "target player not found in lobby")
)
