// internal/game/scoring.go
package game

// Winner of a resolved round. The zero value means unresolved.
type Winner string

const (
	WinnerUnresolved Winner = ""
	WinnerBlue       Winner = "blue"
	WinnerRed        Winner = "red"
	WinnerTie        Winner = "tie"
)

const (
	answerPoints = 1
	stealPoints  = 2
)

// Verdict is one team's contribution to a round. Correct is ignored when IsSteal is set.
type Verdict struct {
	IsSteal bool
	Correct bool
}

// Outcome is the scored result of a round.
type Outcome struct {
	Winner     Winner `json:"winner"`
	BluePoints int    `json:"bluePoints"`
	RedPoints  int    `json:"redPoints"`
}

// Resolve applies the steal table. A lone steal pays out when the other team
// answered wrong and is lost when it answered right; two steals cancel out.
func Resolve(blue, red Verdict) Outcome {
	switch {
	case blue.IsSteal && red.IsSteal:
		return Outcome{Winner: WinnerTie}
	case blue.IsSteal:
		if red.Correct {
			return Outcome{Winner: WinnerRed, RedPoints: stealPoints}
		}
		return Outcome{Winner: WinnerBlue, BluePoints: stealPoints}
	case red.IsSteal:
		if blue.Correct {
			return Outcome{Winner: WinnerBlue, BluePoints: stealPoints}
		}
		return Outcome{Winner: WinnerRed, RedPoints: stealPoints}
	case blue.Correct && red.Correct:
		return Outcome{Winner: WinnerTie, BluePoints: answerPoints, RedPoints: answerPoints}
	case blue.Correct:
		return Outcome{Winner: WinnerBlue, BluePoints: answerPoints}
	case red.Correct:
		return Outcome{Winner: WinnerRed, RedPoints: answerPoints}
	default:
		return Outcome{Winner: WinnerTie}
	}
}
