// internal/session/service.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/auth"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/history"
	"github.com/jason-s-yu/blufftrivia/internal/presence"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
	"github.com/sirupsen/logrus"
)

const (
	DefaultJudgeTimeout    = 10 * time.Second
	DefaultGenerateTimeout = 30 * time.Second
	recordTimeout          = 5 * time.Second
)

// Options wires a Service. Store, Issuer, Questions and Judge are required.
type Options struct {
	Store      *game.LobbyStore
	Issuer     *auth.Issuer
	Questions  trivia.QuestionGenerator
	Judge      trivia.AnswerJudge
	Recorder   history.Recorder
	Dispatcher Dispatcher
	Logger     *logrus.Logger

	DisconnectGrace time.Duration
	JudgeTimeout    time.Duration
	GenerateTimeout time.Duration

	// Now overrides the clock used for timestamps and deadlines.
	Now func() time.Time
}

// Service is the command layer. Every command verifies the caller, mutates
// one lobby under its lock and dispatches the resulting notifications before
// the lock is released, so each lobby's events go out in the order they were
// applied. Index cleanup and background work run after unlock.
type Service struct {
	store      *game.LobbyStore
	issuer     *auth.Issuer
	questions  trivia.QuestionGenerator
	judge      trivia.AnswerJudge
	recorder   history.Recorder
	dispatcher Dispatcher
	presence   *presence.Tracker
	logger     *logrus.Logger

	judgeTimeout    time.Duration
	generateTimeout time.Duration
	now             func() time.Time

	// ctx bounds background work (generation, judging, recording).
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

// Result is returned to the caller of a successful command.
type Result struct {
	Token      string              `json:"token,omitempty"`
	Player     *game.PlayerView    `json:"player,omitempty"`
	Lobby      *game.LobbySnapshot `json:"lobby,omitempty"`
	Round      *game.RoundView     `json:"round,omitempty"`
	LobbyEnded bool                `json:"lobbyEnded,omitempty"`
}

// NewService builds the command layer and its presence tracker.
func NewService(opts Options) *Service {
	s := &Service{
		store:           opts.Store,
		issuer:          opts.Issuer,
		questions:       opts.Questions,
		judge:           opts.Judge,
		recorder:        opts.Recorder,
		dispatcher:      opts.Dispatcher,
		logger:          opts.Logger,
		judgeTimeout:    opts.JudgeTimeout,
		generateTimeout: opts.GenerateTimeout,
		now:             opts.Now,
	}
	if s.recorder == nil {
		s.recorder = history.Discard{}
	}
	if s.dispatcher == nil {
		s.dispatcher = nopDispatcher{}
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.judgeTimeout <= 0 {
		s.judgeTimeout = DefaultJudgeTimeout
	}
	if s.generateTimeout <= 0 {
		s.generateTimeout = DefaultGenerateTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.presence = presence.NewTracker(opts.DisconnectGrace, s.expire, s.logger)
	return s
}

// SetDispatcher replaces the dispatcher. It must be called before the
// service handles traffic.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Close cancels background work and waits for it to finish. Round timers
// that fire afterwards find the service closed and start nothing.
func (s *Service) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	s.presence.Stop()
	s.wg.Wait()
}

// LobbyExists reports whether code names a live lobby.
func (s *Service) LobbyExists(code string) bool {
	_, ok := s.store.GetLobby(code)
	return ok
}

// authorize verifies token and loads the lobby it grants access to.
func (s *Service) authorize(token string) (*game.Lobby, *auth.Claims, error) {
	if token == "" {
		return nil, nil, game.ErrUnauthorized
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		s.logger.WithError(err).Debug("token rejected")
		return nil, nil, game.ErrUnauthorized
	}
	l, ok := s.store.GetLobby(claims.LobbyCode)
	if !ok {
		return nil, nil, game.ErrLobbyNotFound
	}
	return l, claims, nil
}

// exec runs fn with the caller's lobby locked and the caller resolved to a
// live player. Effects collected in the batch are applied after unlock, and
// only when fn succeeds.
func (s *Service) exec(token string, fn func(l *game.Lobby, me *game.Player, b *batch) (*Result, error)) (*Result, error) {
	l, claims, err := s.authorize(token)
	if err != nil {
		return nil, err
	}
	return s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		me := l.PlayerByID(claims.PlayerID)
		if me == nil {
			return nil, game.ErrPlayerNotFound
		}
		return fn(l, me, b)
	})
}

func (s *Service) locked(l *game.Lobby, fn func(l *game.Lobby, b *batch) (*Result, error)) (*Result, error) {
	b := &batch{code: l.Code}

	l.Mu.Lock()
	if l.Closed {
		l.Mu.Unlock()
		return nil, game.ErrLobbyNotFound
	}
	res, err := fn(l, b)
	if err == nil && len(b.notes) > 0 {
		s.dispatcher.Dispatch(b.notes...)
	}
	l.Mu.Unlock()

	if err != nil {
		return nil, err
	}
	for _, f := range b.after {
		f()
	}
	return res, nil
}

// background runs f on its own goroutine, tracked by Close. It reports false
// once the service is closed.
func (s *Service) background(f func(ctx context.Context)) bool {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.closeMu.Unlock()

	go func() {
		defer s.wg.Done()
		f(s.ctx)
	}()
	return true
}

// teardownUnsafe closes l and queues the lobby-ended broadcast and cleanup.
func (s *Service) teardownUnsafe(l *game.Lobby, b *batch, reason string) {
	l.TeardownUnsafe()
	code := l.Code
	b.lobby(EventLobbyEnded, map[string]any{"reason": reason})
	b.then(func() {
		s.store.DeleteLobby(code)
		s.presence.ForgetLobby(code)
		s.dispatcher.Disconnect(code, uuid.Nil, reason)
	})
	s.logger.WithFields(logrus.Fields{"lobby": code, "reason": reason}).Info("lobby torn down")
}

// removeUnsafe drops a departed player's index entries after unlock.
func (s *Service) removeUnsafe(l *game.Lobby, p *game.Player, b *batch, reason string) {
	code, id := l.Code, p.ID
	b.then(func() {
		s.store.UnbindPlayer(id)
		s.presence.Forget(code, id)
		s.dispatcher.Disconnect(code, id, reason)
	})
}

func snapshot(l *game.Lobby) *game.LobbySnapshot {
	snap := l.SnapshotUnsafe()
	return &snap
}

func playerView(p *game.Player) *game.PlayerView {
	v := p.View()
	return &v
}

// Kind reports the classification of a command error, or false when err is
// not a command error.
func Kind(err error) (game.ErrorKind, bool) {
	var ge *game.Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}
