// internal/session/commands.go
package session

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/sirupsen/logrus"
)

// CreateLobby registers a new lobby hosted by hostName and returns the host's token.
func (s *Service) CreateLobby(hostName string) (*Result, error) {
	l, err := s.store.CreateLobby(hostName, s.now())
	if err != nil {
		return nil, err
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()

	token, err := s.issuer.Issue(l.Host.ID, l.Host.Name, l.Code, true)
	if err != nil {
		s.store.DeleteLobby(l.Code)
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"lobby": l.Code, "host": l.Host.Name}).Info("lobby created")
	return &Result{Token: token, Player: playerView(l.Host), Lobby: snapshot(l)}, nil
}

// JoinLobby adds playerName to the lobby at code and returns their token.
func (s *Service) JoinLobby(playerName, code string) (*Result, error) {
	l, ok := s.store.GetLobby(code)
	if !ok {
		return nil, game.ErrLobbyNotFound
	}
	return s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		p, err := l.JoinUnsafe(playerName, s.now())
		if err != nil {
			return nil, err
		}
		token, err := s.issuer.Issue(p.ID, p.Name, l.Code, false)
		if err != nil {
			l.RemovePlayerUnsafe(p)
			return nil, err
		}
		s.store.BindPlayer(p.ID, l.Code)

		snap := snapshot(l)
		b.lobby(EventPlayerJoined, map[string]any{"player": p.View(), "lobby": snap})
		s.logger.WithFields(logrus.Fields{"lobby": l.Code, "player": p.Name, "team": p.Team}).Info("player joined")
		return &Result{Token: token, Player: playerView(p), Lobby: snap}, nil
	})
}

// GetLobby returns the snapshot of code. The token must belong to that lobby.
func (s *Service) GetLobby(code, token string) (*Result, error) {
	if token == "" {
		return nil, game.ErrUnauthorized
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, game.ErrUnauthorized
	}
	if claims.LobbyCode != game.NormalizeCode(code) {
		return nil, game.ErrForbidden
	}
	return s.exec(token, func(l *game.Lobby, me *game.Player, _ *batch) (*Result, error) {
		return &Result{Player: playerView(me), Lobby: snapshot(l)}, nil
	})
}

// LeaveLobby removes the caller. A departing host ends the lobby for everyone.
func (s *Service) LeaveLobby(token string) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		return s.leaveUnsafe(l, me.ID, b, reasonHostLeft)
	})
}

func (s *Service) leaveUnsafe(l *game.Lobby, playerID uuid.UUID, b *batch, hostReason string) (*Result, error) {
	p, hostLeft, err := l.LeaveUnsafe(playerID)
	if err != nil {
		return nil, err
	}
	if hostLeft {
		s.teardownUnsafe(l, b, hostReason)
		return &Result{LobbyEnded: true}, nil
	}

	s.removeUnsafe(l, p, b, "left the lobby")
	snap := snapshot(l)
	b.lobby(EventPlayerLeft, map[string]any{"player": p.View(), "lobby": snap})
	s.logger.WithFields(logrus.Fields{"lobby": l.Code, "player": p.Name}).Info("player left")
	return &Result{Lobby: snap}, nil
}

// TeamSelect moves the caller to team, optionally claiming its captaincy.
func (s *Service) TeamSelect(token, team string, asCaptain bool) (*Result, error) {
	t, err := game.ParseTeam(team)
	if err != nil {
		return nil, err
	}
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		if err := l.AssignTeamUnsafe(me, t, asCaptain); err != nil {
			return nil, err
		}
		snap := snapshot(l)
		b.lobby(EventPlayerTeamChanged, map[string]any{"player": me.View(), "lobby": snap})
		return &Result{Player: playerView(me), Lobby: snap}, nil
	})
}

// UpdateSettings merges patch into the lobby settings. Host only, pregame only.
func (s *Service) UpdateSettings(token string, patch game.SettingsPatch) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		settings, err := l.UpdateSettingsUnsafe(me.ID, patch)
		if err != nil {
			return nil, err
		}
		snap := snapshot(l)
		b.lobby(EventSettingsUpdated, map[string]any{"settings": settings, "lobby": snap})
		return &Result{Lobby: snap}, nil
	})
}

// KickPlayer removes targetID on behalf of the host.
func (s *Service) KickPlayer(token string, targetID uuid.UUID) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		target, err := l.KickUnsafe(me.ID, targetID)
		if err != nil {
			return nil, err
		}
		snap := snapshot(l)
		b.player(target.ID, EventYouWereKicked, map[string]any{"message": messageKicked, "kickedBy": me.ID})
		b.lobby(EventPlayerKicked, map[string]any{"player": target.View(), "kickedBy": me.ID, "lobby": snap})
		s.removeUnsafe(l, target, b, messageKicked)
		s.logger.WithFields(logrus.Fields{"lobby": l.Code, "player": target.Name}).Info("player kicked")
		return &Result{Lobby: snap}, nil
	})
}

// EndLobby tears the lobby down on behalf of the host.
func (s *Service) EndLobby(token string) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		if err := l.EndUnsafe(me.ID); err != nil {
			return nil, err
		}
		s.teardownUnsafe(l, b, reasonHostEnded)
		return &Result{LobbyEnded: true}, nil
	})
}

// SendChat relays message to the whole lobby, or only to the caller's team
// when scope is "team". Team membership is read at send time.
func (s *Service) SendChat(token, message, scope string) error {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > maxChatLength {
		return game.ErrInvalidMessage
	}
	if scope == "" {
		scope = ChatScopeGame
	}
	if scope != ChatScopeGame && scope != ChatScopeTeam {
		return game.ErrInvalidMessage
	}

	_, err := s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		payload := map[string]any{
			"message":    message,
			"playerId":   me.ID,
			"playerName": me.Name,
			"team":       me.Team,
			"chatType":   scope,
			"timestamp":  s.now().UTC(),
		}
		if scope == ChatScopeGame {
			b.lobby(EventChatMessage, payload)
			return nil, nil
		}
		members := l.BlueTeam
		if me.Team == game.TeamRed {
			members = l.RedTeam
		}
		ids := make([]uuid.UUID, len(members))
		for i, p := range members {
			ids[i] = p.ID
		}
		b.players(ids, EventChatMessage, payload)
		return nil, nil
	})
	return err
}
