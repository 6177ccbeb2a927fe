// Package testlab holds the records produced by automated bot test runs.
package testlab

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SingleRunGroup marks a match launched outside of any test group
	SingleRunGroup = -1

	// UnassignedMap is stored until the runner picks a map
	UnassignedMap = "TBD"

	// BuildingEventType is the only event type the timing report reads
	BuildingEventType = "Building"
)

// Match is one bot game against a built-in AI opponent
type Match struct {
	ID                 int64      `json:"id"`
	TestGroupID        int        `json:"testGroupId"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	MapName            string     `json:"mapName"`
	OpponentRace       Race       `json:"opponentRace"`
	OpponentDifficulty Difficulty `json:"opponentDifficulty"`
	OpponentBuild      Build      `json:"opponentBuild"`
	Result             Result     `json:"result"`
	DurationSeconds    *int       `json:"durationSeconds,omitempty"`

	// Set by reports, never persisted
	IsBestTime bool `json:"isBestTime"`
}

// Duration returns the game length and whether it is usable (present and > 0)
func (m *Match) Duration() (int, bool) {
	if m.DurationSeconds == nil || *m.DurationSeconds <= 0 {
		return 0, false
	}
	return *m.DurationSeconds, true
}

// String mirrors the admin listing format
func (m *Match) String() string {
	return fmt.Sprintf("Group %d - %s vs %s-%s (%s)",
		m.TestGroupID, m.MapName, m.OpponentRace, m.OpponentBuild, m.Result)
}

// MatchEvent is a timestamped message logged by the bot during a match
type MatchEvent struct {
	ID            int64   `json:"id"`
	MatchID       int64   `json:"matchId"`
	Type          string  `json:"type"`
	Message       string  `json:"message"`
	GameTimestamp float64 `json:"gameTimestamp"`
}

// BuildingEvent is a Building event joined with its owning match
type BuildingEvent struct {
	MatchID       int64
	TestGroupID   int
	Result        Result
	Building      string
	GameTimestamp float64
}

// MatchFilter narrows ListMatches. A nil ExcludeGroup keeps every group.
type MatchFilter struct {
	ExcludeGroup *int
	Difficulty   Difficulty
}

// ReportFilter is the filter every pivot report starts from
func ReportFilter(difficulty Difficulty) MatchFilter {
	g := SingleRunGroup
	return MatchFilter{ExcludeGroup: &g, Difficulty: difficulty}
}

// Keep reports whether m passes the filter
func (f MatchFilter) Keep(m *Match) bool {
	if f.ExcludeGroup != nil && m.TestGroupID == *f.ExcludeGroup {
		return false
	}
	if f.Difficulty != "" && m.OpponentDifficulty != f.Difficulty {
		return false
	}
	return true
}

// ParseDuration converts a stored duration value. Anything that is not a
// whole number of seconds is treated as absent.
func ParseDuration(v any) *int {
	var n int
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		n = t
	case int32:
		n = int(t)
	case int64:
		n = int(t)
	case float64:
		if t != float64(int64(t)) {
			return nil
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		n = parsed
	case []byte:
		return ParseDuration(string(t))
	default:
		return nil
	}
	return &n
}
