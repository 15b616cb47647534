// internal/trivia/trivia.go
package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Question is one prepared trivia item as returned by a QuestionGenerator.
type Question struct {
	Category          string   `json:"category"`
	Prompt            string   `json:"prompt"`
	Answer            string   `json:"answer"`
	AcceptableAnswers []string `json:"acceptable_answers"`
}

// QuestionGenerator produces an ordered bank of questions for a game.
// Implementations may fail; callers are expected to fall back to placeholders.
type QuestionGenerator interface {
	Generate(ctx context.Context, count int, tags []string) ([]Question, error)
}

// JudgeRequest carries everything an AnswerJudge needs to grade one submission.
type JudgeRequest struct {
	Question          string
	Answer            string
	AcceptableAnswers []string
	Submitted         string
}

// AnswerJudge decides whether free text matches a canonical answer.
// An error is treated by callers as an incorrect answer.
type AnswerJudge interface {
	Judge(ctx context.Context, req JudgeRequest) (bool, error)
}

// ErrQuestionCount is returned when a generator yields fewer questions than requested.
var ErrQuestionCount = errors.New("question count mismatch")

// ParseQuestions decodes a model response into exactly count questions.
// The payload may be wrapped in a markdown code fence and may be either a bare
// array or an object with a "questions" field.
func ParseQuestions(raw string, count int) ([]Question, error) {
	clean := stripFence(raw)

	var questions []Question
	if strings.HasPrefix(clean, "{") {
		var wrapped struct {
			Questions []Question `json:"questions"`
		}
		if err := json.Unmarshal([]byte(clean), &wrapped); err != nil {
			return nil, fmt.Errorf("decode question object: %w", err)
		}
		questions = wrapped.Questions
	} else if err := json.Unmarshal([]byte(clean), &questions); err != nil {
		return nil, fmt.Errorf("decode question array: %w", err)
	}

	if len(questions) > count {
		questions = questions[:count]
	}
	if len(questions) != count {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrQuestionCount, count, len(questions))
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" || strings.TrimSpace(q.Answer) == "" {
			return nil, fmt.Errorf("question %d is missing a prompt or answer", i+1)
		}
		if q.Category == "" {
			questions[i].Category = "General"
		}
	}
	return questions, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
