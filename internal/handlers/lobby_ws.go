// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/blufftrivia/internal/auth"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/middleware"
	"github.com/jason-s-yu/blufftrivia/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// clientMessage is the frame clients send over the lobby socket.
type clientMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	ChatType string `json:"chatType,omitempty"`
}

// LobbyWSHandler upgrades to the lobby subprotocol, binds the socket to the
// token's seat and relays lobby events until either side goes away.
func LobbyWSHandler(logger *logrus.Logger, svc *session.Service, hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.CloseNow()

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		var conn *LobbyConnection
		claims, _, err := svc.Connect(token, func(claims *auth.Claims, res *session.Result) {
			// Runs under the lobby lock: the snapshot is queued first and the
			// connection joins the hub before any later event is dispatched.
			conn = newLobbyConnection(claims.LobbyCode, claims.PlayerID, claims.Name)
			conn.Write(Envelope{Type: "lobby-state", Payload: res})
			hub.Add(conn)
		})
		if err != nil {
			msg := "authentication failed"
			var ge *game.Error
			if errors.As(err, &ge) {
				msg = ge.Message
			}
			c.Close(InvalidAuthTokenError, msg)
			return
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path, claims.LobbyCode, claims.Name)

		ctx, cancel := context.WithCancel(r.Context())
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer cancel()
			writePump(ctx, c, conn, logger)
		}()

		err = readPump(ctx, c, conn, svc, token, logger)

		hub.Remove(conn)
		cancel()
		<-done
		svc.Disconnect(claims.LobbyCode, claims.PlayerID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, claims.LobbyCode, claims.Name, err)
	}
}

// readPump handles incoming frames until the socket closes or ctx ends.
func readPump(ctx context.Context, c *websocket.Conn, conn *LobbyConnection, svc *session.Service, token string, logger *logrus.Logger) error {
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 10)
	log := logger.WithFields(logrus.Fields{"lobby": conn.LobbyCode, "player": conn.PlayerID})

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.Warn("ignoring non-text frame")
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.WriteError("invalid_json", "invalid JSON format")
			continue
		}

		switch msg.Type {
		case "ping":
			conn.Write(Envelope{Type: "pong"})
		case "chat":
			if !limiter.Allow() {
				conn.WriteError("rate_limited", "slow down")
				continue
			}
			if err := svc.SendChat(token, msg.Message, msg.ChatType); err != nil {
				var ge *game.Error
				if errors.As(err, &ge) {
					conn.WriteError(ge.Code, ge.Message)
					continue
				}
				log.WithError(err).Error("chat failed")
				conn.WriteError("internal_error", "internal error")
			}
		default:
			conn.WriteError("unknown_type", "unknown message type")
		}
	}
}

// writePump drains the outbox, pings periodically and performs the closing
// handshake once the hub asks the connection to close.
func writePump(ctx context.Context, c *websocket.Conn, conn *LobbyConnection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(env Envelope) bool {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := wsjson.Write(wctx, c, env); err != nil {
			logger.WithError(err).WithField("player", conn.PlayerID).Debug("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-conn.OutChan:
			if !write(env) {
				return
			}
		case <-conn.closing:
		drain:
			for {
				select {
				case env := <-conn.OutChan:
					if !write(env) {
						return
					}
				default:
					break drain
				}
			}
			_ = c.Close(websocket.StatusCode(conn.closeCode), conn.reason)
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("player", conn.PlayerID).Warn("ping failed, assuming disconnect")
				return
			}
		}
	}
}
