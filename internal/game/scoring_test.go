// internal/game/scoring_test.go
package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type play int

const (
	steal play = iota
	correct
	incorrect
)

func (p play) verdict() Verdict {
	return Verdict{IsSteal: p == steal, Correct: p == correct}
}

func (p play) String() string {
	return [...]string{"steal", "correct", "incorrect"}[p]
}

// TestResolveTable covers every pairing of steal/correct/incorrect per team.
func TestResolveTable(t *testing.T) {
	cases := []struct {
		blue, red play
		want      Outcome
	}{
		{steal, steal, Outcome{Winner: WinnerTie}},
		{steal, correct, Outcome{Winner: WinnerRed, RedPoints: 2}},
		{steal, incorrect, Outcome{Winner: WinnerBlue, BluePoints: 2}},
		{correct, steal, Outcome{Winner: WinnerBlue, BluePoints: 2}},
		{incorrect, steal, Outcome{Winner: WinnerRed, RedPoints: 2}},
		{correct, correct, Outcome{Winner: WinnerTie, BluePoints: 1, RedPoints: 1}},
		{correct, incorrect, Outcome{Winner: WinnerBlue, BluePoints: 1}},
		{incorrect, correct, Outcome{Winner: WinnerRed, RedPoints: 1}},
		{incorrect, incorrect, Outcome{Winner: WinnerTie}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_vs_%s", tc.blue, tc.red), func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.blue.verdict(), tc.red.verdict()))
		})
	}
}

// TestResolveSymmetric checks that swapping teams mirrors the outcome.
func TestResolveSymmetric(t *testing.T) {
	mirror := map[Winner]Winner{WinnerBlue: WinnerRed, WinnerRed: WinnerBlue, WinnerTie: WinnerTie}
	for _, a := range []play{steal, correct, incorrect} {
		for _, b := range []play{steal, correct, incorrect} {
			ab := Resolve(a.verdict(), b.verdict())
			ba := Resolve(b.verdict(), a.verdict())
			assert.Equal(t, mirror[ab.Winner], ba.Winner, "%s vs %s", a, b)
			assert.Equal(t, ab.BluePoints, ba.RedPoints, "%s vs %s", a, b)
			assert.Equal(t, ab.RedPoints, ba.BluePoints, "%s vs %s", a, b)
		}
	}
}

func TestResolveIgnoresCorrectOnSteal(t *testing.T) {
	got := Resolve(Verdict{IsSteal: true, Correct: true}, Verdict{Correct: false})
	assert.Equal(t, Outcome{Winner: WinnerBlue, BluePoints: 2}, got)
}
