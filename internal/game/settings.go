// internal/game/settings.go
package game

import (
	"strings"
	"time"
)

const (
	MinRounds     = 1
	MaxRounds     = 20
	MinRoundLimit = 15
	MaxRoundLimit = 120
	maxTags       = 10
	maxTagLength  = 40
)

// Settings configures a game. RoundLimit is in seconds.
type Settings struct {
	Rounds     int      `json:"rounds"`
	RoundLimit int      `json:"roundLimit"`
	Tags       []string `json:"tags"`
}

// DefaultSettings are applied to every new lobby.
func DefaultSettings() Settings {
	return Settings{Rounds: 7, RoundLimit: 60, Tags: []string{"General"}}
}

// SettingsPatch carries only the fields a client wants to change; nil fields are left alone.
type SettingsPatch struct {
	Rounds     *int     `json:"rounds,omitempty"`
	RoundLimit *int     `json:"roundLimit,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Apply merges p onto s and returns the result. s is not modified on error.
func (s Settings) Apply(p SettingsPatch) (Settings, error) {
	next := s
	next.Tags = append([]string(nil), s.Tags...)

	if p.Rounds != nil {
		if *p.Rounds < MinRounds || *p.Rounds > MaxRounds {
			return s, ErrInvalidSettings
		}
		next.Rounds = *p.Rounds
	}
	if p.RoundLimit != nil {
		if *p.RoundLimit < MinRoundLimit || *p.RoundLimit > MaxRoundLimit {
			return s, ErrInvalidSettings
		}
		next.RoundLimit = *p.RoundLimit
	}
	if p.Tags != nil {
		tags, err := cleanTags(p.Tags)
		if err != nil {
			return s, err
		}
		next.Tags = tags
	}
	return next, nil
}

// RoundDuration is the per-round time limit.
func (s Settings) RoundDuration() time.Duration {
	return time.Duration(s.RoundLimit) * time.Second
}

func cleanTags(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		if len(t) > maxTagLength {
			return nil, ErrInvalidSettings
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	if len(out) == 0 || len(out) > maxTags {
		return nil, ErrInvalidSettings
	}
	return out, nil
}
