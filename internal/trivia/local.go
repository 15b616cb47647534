// internal/trivia/local.go
package trivia

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StaticBank serves questions from a fixed in-memory list. Questions matching
// one of the requested tags are preferred; the bank wraps around when exhausted.
type StaticBank struct {
	mu        sync.Mutex
	questions []Question
	next      int
}

// NewStaticBank copies qs into a new bank.
func NewStaticBank(qs []Question) *StaticBank {
	return &StaticBank{questions: append([]Question(nil), qs...)}
}

// DefaultBank is the bank used when no model key is configured.
func DefaultBank() *StaticBank {
	return NewStaticBank([]Question{
		{Category: "General", Prompt: "Which planet has the moon Titan?", Answer: "Saturn"},
		{Category: "General", Prompt: "What is the chemical symbol Pb the symbol for?", Answer: "Lead"},
		{Category: "General", Prompt: "Which painter cut off part of his own ear in 1888?", Answer: "Vincent van Gogh", AcceptableAnswers: []string{"Van Gogh"}},
		{Category: "General", Prompt: "How many sides does a dodecagon have?", Answer: "12", AcceptableAnswers: []string{"twelve"}},
		{Category: "General", Prompt: "In which city is the Alhambra palace?", Answer: "Granada"},
		{Category: "General", Prompt: "What language has the most native speakers in Brazil?", Answer: "Portuguese"},
		{Category: "General", Prompt: "Which band released the album Abbey Road?", Answer: "The Beatles", AcceptableAnswers: []string{"Beatles"}},
		{Category: "Sports", Prompt: "In which sport is the term 'birdie' used?", Answer: "Golf"},
		{Category: "Sports", Prompt: "Which country hosted the first FIFA World Cup?", Answer: "Uruguay"},
		{Category: "Science", Prompt: "What is the hardest natural mineral?", Answer: "Diamond"},
		{Category: "Science", Prompt: "What gas do plants absorb for photosynthesis?", Answer: "Carbon dioxide", AcceptableAnswers: []string{"CO2"}},
		{Category: "History", Prompt: "In what year did the Berlin Wall fall?", Answer: "1989"},
	})
}

// Generate returns count questions, preferring ones whose category matches a tag.
func (b *StaticBank) Generate(_ context.Context, count int, tags []string) ([]Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.questions) == 0 || count <= 0 {
		return nil, fmt.Errorf("%w: bank cannot supply %d questions", ErrQuestionCount, count)
	}

	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[strings.ToLower(strings.TrimSpace(t))] = true
	}
	var pool []Question
	for _, q := range b.questions {
		if wanted[strings.ToLower(q.Category)] {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		pool = b.questions
	}

	out := make([]Question, 0, count)
	for len(out) < count {
		out = append(out, pool[b.next%len(pool)])
		b.next++
	}
	return out, nil
}

// NormalizedJudge grades answers by comparing normalized text. It never fails.
type NormalizedJudge struct{}

// Judge reports whether the submission matches the answer or any accepted variant.
func (NormalizedJudge) Judge(_ context.Context, req JudgeRequest) (bool, error) {
	got := Normalize(req.Submitted)
	if got == "" {
		return false, nil
	}
	for _, candidate := range append([]string{req.Answer}, req.AcceptableAnswers...) {
		if n := Normalize(candidate); n != "" && n == got {
			return true, nil
		}
	}
	return false, nil
}

var leadingArticles = []string{"the ", "a ", "an "}

// Normalize folds case, strips accents and punctuation, collapses whitespace
// and drops a leading English article.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := strings.Join(fields, " ")
	for _, art := range leadingArticles {
		if strings.HasPrefix(out, art) && len(out) > len(art) {
			out = out[len(art):]
			break
		}
	}
	return out
}
