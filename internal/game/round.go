// internal/game/round.go
package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
)

// RoundState is the lifecycle position of one round.
type RoundState int

const (
	RoundNotStarted RoundState = iota
	RoundAwaitingSubmissions
	RoundResolving
	RoundResolved
)

func (s RoundState) String() string {
	switch s {
	case RoundNotStarted:
		return "not_started"
	case RoundAwaitingSubmissions:
		return "awaiting_submissions"
	case RoundResolving:
		return "resolving"
	case RoundResolved:
		return "resolved"
	}
	return "unknown"
}

// Submission is what a team's captain sent for a round. Immutable once Submitted is set.
type Submission struct {
	Submitted bool
	IsSteal   bool
	Answer    string
	PlayerID  uuid.UUID
	Correct   bool
	Judged    bool
}

// Round is one question in a game's bank.
type Round struct {
	Number            int
	Question          string
	Answer            string
	AcceptableAnswers []string
	Tag               string
	State             RoundState
	StartedAt         time.Time
	Deadline          time.Time
	Blue              Submission
	Red               Submission
	Outcome           Outcome
	TimedOut          bool
}

func newRound(n int, q trivia.Question) *Round {
	tag := q.Category
	if tag == "" {
		tag = "General"
	}
	return &Round{
		Number:            n,
		Question:          q.Prompt,
		Answer:            q.Answer,
		AcceptableAnswers: append([]string(nil), q.AcceptableAnswers...),
		Tag:               tag,
	}
}

// PlaceholderQuestions is the bank used when question generation fails.
func PlaceholderQuestions(n int) []trivia.Question {
	qs := make([]trivia.Question, n)
	for i := range qs {
		qs[i] = trivia.Question{
			Category: "General",
			Prompt:   fmt.Sprintf("Question %d (Failed to generate)", i+1),
			Answer:   "Default answer",
		}
	}
	return qs
}

// Submission returns the record for t.
func (r *Round) Submission(t Team) *Submission {
	switch t {
	case TeamBlue:
		return &r.Blue
	case TeamRed:
		return &r.Red
	}
	return nil
}

// BothSubmitted reports whether both captains have answered.
func (r *Round) BothSubmitted() bool {
	return r.Blue.Submitted && r.Red.Submitted
}

// JudgeTask is one pending call to the answer judge.
type JudgeTask struct {
	Team    Team
	Request trivia.JudgeRequest
}

// JudgeTasks lists the submissions that need grading. Steals and blank answers are skipped.
func (r *Round) JudgeTasks() []JudgeTask {
	var tasks []JudgeTask
	for _, t := range []Team{TeamBlue, TeamRed} {
		s := r.Submission(t)
		if !s.Submitted || s.IsSteal || strings.TrimSpace(s.Answer) == "" {
			continue
		}
		tasks = append(tasks, JudgeTask{
			Team: t,
			Request: trivia.JudgeRequest{
				Question:          r.Question,
				Answer:            r.Answer,
				AcceptableAnswers: r.AcceptableAnswers,
				Submitted:         s.Answer,
			},
		})
	}
	return tasks
}
