// internal/trivia/gemini.go
package trivia

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for both generation and judging.
const DefaultModel = "gemini-2.5-flash-lite"

// Gemini implements QuestionGenerator and AnswerJudge on top of the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *logrus.Logger
}

// NewGemini builds a client for the Gemini developer API.
func NewGemini(ctx context.Context, apiKey, model string, logger *logrus.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

func (g *Gemini) complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	})
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// Generate asks the model for count questions drawn from tags.
func (g *Gemini) Generate(ctx context.Context, count int, tags []string) ([]Question, error) {
	text, err := g.complete(ctx, questionPrompt(count, tags))
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	questions, err := ParseQuestions(text, count)
	if err != nil {
		g.logger.WithError(err).WithField("response", text).Warn("unusable question response")
		return nil, err
	}
	return questions, nil
}

// Judge grades a single submission. Empty input is incorrect without a model call.
func (g *Gemini) Judge(ctx context.Context, req JudgeRequest) (bool, error) {
	if strings.TrimSpace(req.Answer) == "" || strings.TrimSpace(req.Submitted) == "" {
		return false, nil
	}
	text, err := g.complete(ctx, judgePrompt(req))
	if err != nil {
		return false, fmt.Errorf("judge answer: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(text)) == "correct", nil
}

func questionPrompt(count int, tags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write exactly %d trivia questions for a two-team party game on these topics: %s.\n\n", count, strings.Join(tags, ", "))
	b.WriteString("Rules:\n")
	b.WriteString("- Every answer must be verifiably correct. Skip anything you are unsure about.\n")
	b.WriteString("- Aim for easy to medium difficulty; avoid textbook clichés and answers given away by the wording.\n")
	b.WriteString("- Prefer facts that do not change from year to year.\n")
	b.WriteString("- Answers are short: three words at most, or a number or year, in the form the question asks for.\n\n")
	b.WriteString("Respond with only a JSON array, no prose and no code fences. Each element has exactly these keys:\n")
	b.WriteString(`"category" (short topic taken from the list), "prompt" (the question), "answer" (canonical answer), "acceptable_answers" (array of accepted variants, may be empty).`)
	return b.String()
}

func judgePrompt(req JudgeRequest) string {
	var b strings.Builder
	b.WriteString("Grade this trivia answer.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	fmt.Fprintf(&b, "Correct answer: %s\n", req.Answer)
	if len(req.AcceptableAnswers) > 0 {
		fmt.Fprintf(&b, "Also accepted: %s\n", strings.Join(req.AcceptableAnswers, ", "))
	}
	fmt.Fprintf(&b, "Player answer: %s\n\n", req.Submitted)
	b.WriteString(`Ignore case, punctuation and minor misspellings. Reply with the single word "correct" or "incorrect".`)
	return b.String()
}
