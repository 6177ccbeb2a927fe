package testlab

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownValue is returned when a stored string is not a member of its enum
var ErrUnknownValue = errors.New("unknown value")

// Race is the opponent's race
type Race string

const (
	Protoss    Race = "Protoss"
	Terran     Race = "Terran"
	Zerg       Race = "Zerg"
	RandomRace Race = "Random"
)

// Races lists every race in display order
var Races = []Race{Protoss, Terran, Zerg, RandomRace}

// ParseRace accepts any casing ("protoss", "PROTOSS", "Protoss")
func ParseRace(s string) (Race, error) {
	for _, r := range Races {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("race %q: %w", s, ErrUnknownValue)
}

// Build is the opponent AI's build style
type Build string

const (
	Air         Build = "Air"
	Macro       Build = "Macro"
	Power       Build = "Power"
	Rush        Build = "Rush"
	Timing      Build = "Timing"
	RandomBuild Build = "RandomBuild"
)

// Builds lists every build in display order
var Builds = []Build{Air, Macro, Power, Rush, Timing, RandomBuild}

// ParseBuild accepts any casing ("rush", "randombuild")
func ParseBuild(s string) (Build, error) {
	for _, b := range Builds {
		if strings.EqualFold(s, string(b)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("build %q: %w", s, ErrUnknownValue)
}

// Difficulty is the built-in AI difficulty level
type Difficulty string

const (
	Easy        Difficulty = "Easy"
	Medium      Difficulty = "Medium"
	MediumHard  Difficulty = "MediumHard"
	Hard        Difficulty = "Hard"
	Harder      Difficulty = "Harder"
	VeryHard    Difficulty = "VeryHard"
	CheatVision Difficulty = "CheatVision"
	CheatMoney  Difficulty = "CheatMoney"
	CheatInsane Difficulty = "CheatInsane"
)

// DefaultDifficulty is used when a match is queued without one
const DefaultDifficulty = CheatInsane

// Difficulties is the canonical ordering, easiest first
var Difficulties = []Difficulty{
	Easy, Medium, MediumHard, Hard, Harder, VeryHard,
	CheatVision, CheatMoney, CheatInsane,
}

// DifficultyOrder maps difficulty to its position for comparison
var DifficultyOrder = map[Difficulty]int{
	Easy:        0,
	Medium:      1,
	MediumHard:  2,
	Hard:        3,
	Harder:      4,
	VeryHard:    5,
	CheatVision: 6,
	CheatMoney:  7,
	CheatInsane: 8,
}

// Rank returns the canonical position of d. Unknown difficulties rank
// after every known one.
func (d Difficulty) Rank() int {
	if r, ok := DifficultyOrder[d]; ok {
		return r
	}
	return len(Difficulties)
}

// Known reports whether d is one of the nine AI levels
func (d Difficulty) Known() bool {
	_, ok := DifficultyOrder[d]
	return ok
}

// ParseDifficulty matches case-insensitively against the canonical names
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("difficulty %q: %w", s, ErrUnknownValue)
}

// Result is the outcome of a match
type Result string

const (
	Victory   Result = "Victory"
	Defeat    Result = "Defeat"
	Tie       Result = "Tie"
	Pending   Result = "Pending"
	Aborted   Result = "Aborted"
	Undecided Result = "Undecided"
)

// Results lists every result value
var Results = []Result{Victory, Defeat, Tie, Pending, Aborted, Undecided}

// ParseResult matches case-insensitively against the known results
func ParseResult(s string) (Result, error) {
	for _, r := range Results {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("result %q: %w", s, ErrUnknownValue)
}

// Decided reports whether the result counts toward a win rate
func (r Result) Decided() bool {
	switch r {
	case Victory, Defeat:
		return true
	case Tie, Pending, Aborted, Undecided:
		return false
	}
	return false
}

// Initial is the one-letter form shown next to building timings
func (r Result) Initial() string {
	if r == "" {
		return ""
	}
	return string(r)[:1]
}
