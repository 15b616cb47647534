// internal/session/presence.go
package session

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/auth"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/sirupsen/logrus"
)

// Connect binds a live connection to the token's player. A player coming
// back inside their grace window keeps their seat and captaincy.
//
// bind, when non-nil, runs under the lobby lock with the connect result. A
// transport registers its connection there so that no event dispatched for
// the lobby can fall between the returned snapshot and the registration.
func (s *Service) Connect(token string, bind func(claims *auth.Claims, res *Result)) (*auth.Claims, *Result, error) {
	l, claims, err := s.authorize(token)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		p := l.PlayerByID(claims.PlayerID)
		if p == nil {
			return nil, game.ErrPlayerNotFound
		}
		wasDown := !p.Connected
		reconnected := s.presence.Connect(l.Code, p.ID)
		p.Connected = true

		snap := snapshot(l)
		if reconnected || wasDown {
			b.lobby(EventPlayerReconnected, map[string]any{"player": p.View(), "lobby": snap})
			s.logger.WithFields(logrus.Fields{"lobby": l.Code, "player": p.Name}).Info("player reconnected")
		}
		res := &Result{Player: playerView(p), Lobby: snap}
		if bind != nil {
			bind(claims, res)
		}
		return res, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return claims, res, nil
}

// Disconnect releases one connection. When it was the player's last, they
// are marked disconnected and removed once the grace period runs out.
func (s *Service) Disconnect(code string, playerID uuid.UUID) {
	l, ok := s.store.GetLobby(code)
	if !ok {
		return
	}
	_, _ = s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		if !s.presence.Disconnect(code, playerID) {
			return nil, nil
		}
		p, err := l.SetConnectedUnsafe(playerID, false)
		if err != nil {
			return nil, nil
		}
		b.lobby(EventPlayerDisconnected, map[string]any{"playerId": p.ID, "lobbyCode": l.Code})
		s.logger.WithFields(logrus.Fields{"lobby": l.Code, "player": p.Name}).Info("player disconnected")
		return nil, nil
	})
}

// expire removes a player whose grace period ran out, exactly as an explicit leave would.
func (s *Service) expire(code string, playerID uuid.UUID) {
	l, ok := s.store.GetLobby(code)
	if !ok {
		return
	}
	_, err := s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		p := l.PlayerByID(playerID)
		if p == nil || p.Connected {
			return nil, nil
		}
		return s.leaveUnsafe(l, playerID, b, reasonHostTimedOut)
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"lobby": code, "player": playerID}).Debug("presence expiry ignored")
	}
}
