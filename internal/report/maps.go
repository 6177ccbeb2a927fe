package report

import (
	"sort"

	"testlab/internal/testlab"
)

// MapCell is one (map, opponent) entry of the map breakdown
type MapCell struct {
	WinRate     *string `json:"winRate"`
	AvgDuration *int    `json:"avgDuration"`
	Wins        int     `json:"wins"`
	Games       int     `json:"gamesPlayed"`
}

// MapRow is one map; Results is aligned with MapReport.Opponents
type MapRow struct {
	MapName            string    `json:"mapName"`
	Results            []MapCell `json:"results"`
	OverallWinRate     *string   `json:"overallWinRate"`
	OverallAvgDuration *int      `json:"overallAvgDuration"`
	OverallWins        int       `json:"overallWins"`
	OverallGames       int       `json:"overallGames"`
}

// MapRaceHeader spans the builds of one race within a difficulty
type MapRaceHeader struct {
	Name    testlab.Race  `json:"name"`
	Span    int           `json:"span"`
	WinRate string        `json:"winRate"`
	Builds  []BuildHeader `json:"builds"`
}

// DifficultyHeader is the top header level of the map breakdown
type DifficultyHeader struct {
	Difficulty testlab.Difficulty `json:"difficulty"`
	Span       int                `json:"span"`
	WinRate    string             `json:"winRate"`
	Races      []MapRaceHeader    `json:"races"`
}

// MapReport pivots maps against race-difficulty-build opponents
type MapReport struct {
	Headers            []DifficultyHeader `json:"headers"`
	Opponents          []string           `json:"opponents"`
	Rows               []MapRow           `json:"rows"`
	SelectedDifficulty testlab.Difficulty `json:"selectedDifficulty"`
}

// opponentKey identifies a column in the map breakdown
type opponentKey struct {
	Race       testlab.Race
	Difficulty testlab.Difficulty
	Build      testlab.Build
}

func (k opponentKey) String() string {
	return string(k.Race) + "-" + string(k.Difficulty) + "-" + string(k.Build)
}

// mapCellKey is the accumulator key for one cell
type mapCellKey struct {
	Map      string
	Opponent opponentKey
}

// MapBreakdown builds the map × opponent table. Single runs and matches
// still waiting on a map ("TBD") are skipped. Columns are ordered by
// difficulty (easiest first, unknown levels last), then race, then build.
func MapBreakdown(matches []*testlab.Match, difficulty testlab.Difficulty) MapReport {
	filter := testlab.ReportFilter(difficulty)

	cells := make(map[mapCellKey]*cell)
	maps := make(map[string]struct{})
	tree := make(map[testlab.Difficulty]map[testlab.Race]map[testlab.Build]struct{})

	// Pass 1: collect
	for _, m := range matches {
		if !filter.Keep(m) || m.MapName == testlab.UnassignedMap {
			continue
		}
		opp := opponentKey{Race: m.OpponentRace, Difficulty: m.OpponentDifficulty, Build: m.OpponentBuild}
		key := mapCellKey{Map: m.MapName, Opponent: opp}

		c, ok := cells[key]
		if !ok {
			c = &cell{}
			cells[key] = c
		}
		c.add(m)
		maps[m.MapName] = struct{}{}

		races, ok := tree[opp.Difficulty]
		if !ok {
			races = make(map[testlab.Race]map[testlab.Build]struct{})
			tree[opp.Difficulty] = races
		}
		builds, ok := races[opp.Race]
		if !ok {
			builds = make(map[testlab.Build]struct{})
			races[opp.Race] = builds
		}
		builds[opp.Build] = struct{}{}
	}

	// Pass 2: column order and per-column totals
	difficulties := make([]testlab.Difficulty, 0, len(tree))
	for d := range tree {
		difficulties = append(difficulties, d)
	}
	sort.Slice(difficulties, func(i, j int) bool {
		ri, rj := difficulties[i].Rank(), difficulties[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return difficulties[i] < difficulties[j]
	})

	mapNames := make([]string, 0, len(maps))
	for name := range maps {
		mapNames = append(mapNames, name)
	}
	sort.Strings(mapNames)

	report := MapReport{
		Headers:            make([]DifficultyHeader, 0, len(difficulties)),
		Opponents:          []string{},
		Rows:               make([]MapRow, 0, len(mapNames)),
		SelectedDifficulty: difficulty,
	}
	var order []opponentKey

	for _, diff := range difficulties {
		races := make([]testlab.Race, 0, len(tree[diff]))
		for race := range tree[diff] {
			races = append(races, race)
		}
		sort.Slice(races, func(i, j int) bool { return races[i] < races[j] })

		header := DifficultyHeader{Difficulty: diff, Races: make([]MapRaceHeader, 0, len(races))}
		var diffRecord record
		for _, race := range races {
			builds := make([]testlab.Build, 0, len(tree[diff][race]))
			for build := range tree[diff][race] {
				builds = append(builds, build)
			}
			sort.Slice(builds, func(i, j int) bool { return builds[i] < builds[j] })

			raceHeader := MapRaceHeader{Name: race, Span: len(builds), Builds: make([]BuildHeader, 0, len(builds))}
			var raceRecord record
			for _, build := range builds {
				opp := opponentKey{Race: race, Difficulty: diff, Build: build}
				var column record
				for _, name := range mapNames {
					if c, ok := cells[mapCellKey{Map: name, Opponent: opp}]; ok {
						column.merge(c.record)
					}
				}
				raceRecord.merge(column)

				rate := column.rate(0)
				raceHeader.Builds = append(raceHeader.Builds, BuildHeader{
					Name:    build,
					WinRate: rate,
					Label:   string(build) + " " + rate,
				})
				order = append(order, opp)
				report.Opponents = append(report.Opponents, opp.String())
			}
			raceHeader.WinRate = raceRecord.rate(0)
			diffRecord.merge(raceRecord)
			header.Span += len(builds)
			header.Races = append(header.Races, raceHeader)
		}
		header.WinRate = diffRecord.rate(0)
		report.Headers = append(report.Headers, header)
	}

	// Rows, maps alphabetically
	for _, name := range mapNames {
		row := MapRow{MapName: name, Results: make([]MapCell, 0, len(order))}
		var overall cell
		for _, opp := range order {
			var c cell
			if found, ok := cells[mapCellKey{Map: name, Opponent: opp}]; ok {
				c = *found
			}
			row.Results = append(row.Results, MapCell{
				WinRate:     c.ratePtr(0),
				AvgDuration: c.duration.value(),
				Wins:        c.Wins,
				Games:       c.Games,
			})
			overall.merge(c)
		}

		row.OverallWinRate = overall.ratePtr(0)
		row.OverallAvgDuration = overall.duration.value()
		if row.OverallWinRate != nil {
			row.OverallWins = overall.Wins
			row.OverallGames = overall.Games
		}
		report.Rows = append(report.Rows, row)
	}

	return report
}
