// internal/session/game_flow.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/history"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StartGame moves the lobby into play and starts question generation in the
// background. Rounds become available once the bank is installed.
func (s *Service) StartGame(token string) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		gameID, err := l.StartUnsafe(me.ID, s.now())
		if err != nil {
			return nil, err
		}
		code := l.Code
		count := l.Settings.Rounds
		tags := append([]string(nil), l.Settings.Tags...)

		snap := snapshot(l)
		b.lobby(EventGameStarted, map[string]any{"lobby": snap})
		b.then(func() {
			s.background(func(ctx context.Context) {
				s.prepareRounds(ctx, code, gameID, count, tags)
			})
		})
		s.logger.WithFields(logrus.Fields{"lobby": code, "game": gameID, "rounds": count}).Info("game started")
		return &Result{Lobby: snap}, nil
	})
}

// prepareRounds asks the generator for the bank and installs it, falling
// back to placeholder questions when generation fails.
func (s *Service) prepareRounds(ctx context.Context, code string, gameID uuid.UUID, count int, tags []string) {
	log := s.logger.WithFields(logrus.Fields{"lobby": code, "game": gameID})

	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	questions, err := s.questions.Generate(genCtx, count, tags)
	cancel()
	switch {
	case err != nil:
		log.WithError(err).Warn("question generation failed, using placeholders")
		questions = nil
	case len(questions) < count:
		log.WithField("got", len(questions)).Warn("question generator returned too few questions, using placeholders")
		questions = nil
	case len(questions) > count:
		questions = questions[:count]
	}

	l, ok := s.store.GetLobby(code)
	if !ok {
		return
	}
	_, _ = s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		if !l.InstallRoundsUnsafe(gameID, questions) {
			log.Debug("discarding question bank for a stale game")
			return nil, nil
		}
		b.lobby(EventLobbyUpdated, map[string]any{"lobby": snapshot(l), "updateType": updateTypeRoundsReady})
		log.WithField("rounds", len(l.Rounds)).Info("rounds ready")
		return nil, nil
	})
}

// AdvanceRound opens the next round and arms its deadline timer.
func (s *Service) AdvanceRound(token string) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		now := s.now()
		r, err := l.AdvanceRoundUnsafe(me.ID, now)
		if err != nil {
			return nil, err
		}
		code, gameID, number := l.Code, l.GameID, r.Number
		l.SetRoundTimerUnsafe(time.AfterFunc(r.Deadline.Sub(now), func() {
			s.roundDeadline(code, gameID, number)
		}))

		view := r.View()
		b.lobby(EventRoundStarted, map[string]any{
			"round":       view,
			"roundNumber": number,
			"totalRounds": len(l.Rounds),
			"deadline":    r.Deadline,
		})
		return &Result{Round: view, Lobby: snapshot(l)}, nil
	})
}

// roundDeadline force-resolves a round whose timer fired before both
// captains answered.
func (s *Service) roundDeadline(code string, gameID uuid.UUID, number int) {
	l, ok := s.store.GetLobby(code)
	if !ok {
		return
	}
	_, _ = s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		r, ok := l.ForceResolveUnsafe(gameID, number)
		if !ok {
			return nil, nil
		}
		tasks := r.JudgeTasks()
		b.lobby(EventRoundTimeUp, map[string]any{"roundNumber": number})
		b.lobby(EventAnswerProcessing, map[string]any{"roundNumber": number})
		b.then(func() { s.judgeRound(code, gameID, number, tasks) })
		s.logger.WithFields(logrus.Fields{"lobby": code, "round": number}).Info("round timed out")
		return nil, nil
	})
}

// SubmitAnswer records a captain's answer or steal. The second submission
// closes the round and starts judging; the caller only gets an acknowledgement.
func (s *Service) SubmitAnswer(token string, isSteal bool, answer, team string, roundNumber int) (*Result, error) {
	t, err := game.ParseTeam(team)
	if err != nil {
		return nil, err
	}
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		r, err := l.SubmitAnswerUnsafe(me.ID, isSteal, answer, t, roundNumber)
		if err != nil {
			return nil, err
		}
		b.lobby(EventTeamAnswerSubmitted, map[string]any{"team": t, "roundNumber": r.Number})

		if r.State == game.RoundResolving {
			code, gameID, number := l.Code, l.GameID, r.Number
			tasks := r.JudgeTasks()
			b.lobby(EventAnswerProcessing, map[string]any{"roundNumber": number})
			b.then(func() { s.judgeRound(code, gameID, number, tasks) })
		}
		return &Result{Round: r.View()}, nil
	})
}

// judgeRound grades the answering teams in parallel and feeds the verdicts
// back through completeRound. A failed or slow judge counts as incorrect.
func (s *Service) judgeRound(code string, gameID uuid.UUID, number int, tasks []game.JudgeTask) {
	s.background(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, s.judgeTimeout)
		defer cancel()

		var mu sync.Mutex
		verdicts := make(map[game.Team]bool, len(tasks))

		g, gctx := errgroup.WithContext(ctx)
		for _, task := range tasks {
			g.Go(func() error {
				correct, err := s.judge.Judge(gctx, task.Request)
				if err != nil {
					s.logger.WithError(err).WithFields(logrus.Fields{"lobby": code, "round": number, "team": task.Team}).
						Warn("judge failed, treating answer as incorrect")
					correct = false
				}
				mu.Lock()
				verdicts[task.Team] = correct
				mu.Unlock()
				return nil
			})
		}

		done := make(chan struct{})
		go func() {
			_ = g.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.WithFields(logrus.Fields{"lobby": code, "round": number}).Warn("judging timed out")
		}

		mu.Lock()
		final := make(map[game.Team]bool, len(verdicts))
		for t, v := range verdicts {
			final[t] = v
		}
		mu.Unlock()

		s.completeRound(code, gameID, number, final)
	})
}

// completeRound scores a judged round. Results for a round that is no longer
// current are dropped.
func (s *Service) completeRound(code string, gameID uuid.UUID, number int, verdicts map[game.Team]bool) {
	l, ok := s.store.GetLobby(code)
	if !ok {
		return
	}
	_, err := s.locked(l, func(l *game.Lobby, b *batch) (*Result, error) {
		r, err := l.CompleteRoundUnsafe(gameID, number, verdicts, s.now())
		if err != nil {
			return nil, err
		}
		results := l.ResultsUnsafe(r)
		b.lobby(EventRoundResults, results)

		if l.Phase == game.PhaseEnded {
			rec := history.FromLobbyUnsafe(l)
			b.lobby(EventGameEnded, map[string]any{
				"scores": l.Scores,
				"winner": rec.Winner,
				"lobby":  snapshot(l),
			})
			b.then(func() { s.record(rec) })
			s.logger.WithFields(logrus.Fields{"lobby": code, "game": gameID, "winner": rec.Winner}).Info("game ended")
		}
		return nil, nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"lobby": code, "round": number}).Debug("dropping judged round")
	}
}

func (s *Service) record(rec history.GameRecord) {
	s.background(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := s.recorder.Record(ctx, rec); err != nil {
			s.logger.WithError(err).WithField("game", rec.GameID).Error("failed to record finished game")
		}
	})
}

// ReturnToLobby brings the lobby back to pregame, keeping teams and captains.
func (s *Service) ReturnToLobby(token string) (*Result, error) {
	return s.exec(token, func(l *game.Lobby, me *game.Player, b *batch) (*Result, error) {
		if err := l.ReturnToLobbyUnsafe(me.ID); err != nil {
			return nil, err
		}
		snap := snapshot(l)
		b.lobby(EventLobbyReturned, map[string]any{"lobby": snap})
		return &Result{Lobby: snap}, nil
	})
}
