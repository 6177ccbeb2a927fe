package report

import (
	"testlab/internal/testlab"
)

var nextMatchID int64

func intPtr(v int) *int { return &v }

// match builds a finished match; dur <= 0 is stored as missing
func match(group int, race testlab.Race, build testlab.Build, diff testlab.Difficulty, mapName string, result testlab.Result, dur int) *testlab.Match {
	nextMatchID++
	m := &testlab.Match{
		ID:                 nextMatchID,
		TestGroupID:        group,
		MapName:            mapName,
		OpponentRace:       race,
		OpponentBuild:      build,
		OpponentDifficulty: diff,
		Result:             result,
	}
	if dur > 0 {
		m.DurationSeconds = intPtr(dur)
	}
	return m
}
