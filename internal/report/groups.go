package report

import (
	"sort"

	"testlab/internal/testlab"
)

// BuildHeader is one opponent build column under a race
type BuildHeader struct {
	Name    testlab.Build `json:"name"`
	WinRate string        `json:"winRate"`
	Label   string        `json:"label"` // "Rush 50%" or "Rush -"
}

// RaceHeader spans the build columns of one race
type RaceHeader struct {
	Name    testlab.Race  `json:"name"`
	Span    int           `json:"span"`
	WinRate string        `json:"winRate"`
	Builds  []BuildHeader `json:"builds"`
}

// GroupRow is one test group; Results is aligned with GroupReport.Opponents
type GroupRow struct {
	TestGroupID   int                `json:"testGroupId"`
	Difficulty    testlab.Difficulty `json:"difficulty"`
	Results       []*testlab.Match   `json:"results"`
	WinPercentage string             `json:"winPercentage"`
	AvgDuration   *int               `json:"avgDuration"`
}

// GroupReport pivots test groups against race-build opponents
type GroupReport struct {
	Headers            []RaceHeader       `json:"headers"`
	Opponents          []string           `json:"opponents"`
	ColumnWinRates     []string           `json:"columnWinRates"`
	Rows               []GroupRow         `json:"rows"`
	SelectedDifficulty testlab.Difficulty `json:"selectedDifficulty"`
}

// raceBuild identifies a column in the group report
type raceBuild struct {
	Race  testlab.Race
	Build testlab.Build
}

func (k raceBuild) String() string {
	return string(k.Race) + "-" + string(k.Build)
}

// extremesKey groups matches whose durations are compared for highlights
type extremesKey struct {
	Race       testlab.Race
	Build      testlab.Build
	Difficulty testlab.Difficulty
	Map        string
}

type extreme struct {
	duration int
	matchID  int64
}

// groupBucket is every match of a single test group keyed by opponent.
// summary counts every match of the group, including ones a later
// duplicate replaced in matches.
type groupBucket struct {
	difficulty testlab.Difficulty
	matches    map[raceBuild]*testlab.Match
	summary    cell
}

// GroupPivot builds the test group × opponent table. Matches from single
// runs are skipped and, when difficulty is set, only that difficulty is
// kept. Pending results in every group but the newest are shown as
// Aborted, and the fastest win and slowest loss of every race, build,
// difficulty and map combination are flagged with IsBestTime. Both edits
// are made on the passed matches.
func GroupPivot(matches []*testlab.Match, difficulty testlab.Difficulty) GroupReport {
	filter := testlab.ReportFilter(difficulty)

	groups := make(map[int]*groupBucket)
	columns := make(map[raceBuild]*record)
	fastestWins := make(map[extremesKey]extreme)
	slowestLosses := make(map[extremesKey]extreme)

	// Pass 1: collect
	for _, m := range matches {
		if !filter.Keep(m) {
			continue
		}
		key := raceBuild{Race: m.OpponentRace, Build: m.OpponentBuild}

		bucket, ok := groups[m.TestGroupID]
		if !ok {
			bucket = &groupBucket{difficulty: m.OpponentDifficulty, matches: make(map[raceBuild]*testlab.Match)}
			groups[m.TestGroupID] = bucket
		}
		bucket.matches[key] = m
		bucket.summary.add(m)

		col, ok := columns[key]
		if !ok {
			col = &record{}
			columns[key] = col
		}
		col.add(m.Result)

		d, hasDuration := m.Duration()
		if !hasDuration || !m.Result.Decided() {
			continue
		}
		ek := extremesKey{Race: m.OpponentRace, Build: m.OpponentBuild, Difficulty: m.OpponentDifficulty, Map: m.MapName}
		if m.Result == testlab.Victory {
			if cur, seen := fastestWins[ek]; !seen || d < cur.duration {
				fastestWins[ek] = extreme{duration: d, matchID: m.ID}
			}
		} else {
			if cur, seen := slowestLosses[ek]; !seen || d > cur.duration {
				slowestLosses[ek] = extreme{duration: d, matchID: m.ID}
			}
		}
	}

	bestTimes := make(map[int64]bool, len(fastestWins)+len(slowestLosses))
	for _, e := range fastestWins {
		bestTimes[e.matchID] = true
	}
	for _, e := range slowestLosses {
		bestTimes[e.matchID] = true
	}

	// Pass 2: finalize column order, races then builds ascending
	byRace := make(map[testlab.Race][]testlab.Build)
	for key := range columns {
		byRace[key.Race] = append(byRace[key.Race], key.Build)
	}
	races := make([]testlab.Race, 0, len(byRace))
	for race := range byRace {
		races = append(races, race)
	}
	sort.Slice(races, func(i, j int) bool { return races[i] < races[j] })

	report := GroupReport{
		Headers:            make([]RaceHeader, 0, len(races)),
		Opponents:          make([]string, 0, len(columns)),
		ColumnWinRates:     make([]string, 0, len(columns)),
		Rows:               make([]GroupRow, 0, len(groups)),
		SelectedDifficulty: difficulty,
	}
	var order []raceBuild

	for _, race := range races {
		builds := byRace[race]
		sort.Slice(builds, func(i, j int) bool { return builds[i] < builds[j] })

		header := RaceHeader{Name: race, Span: len(builds), Builds: make([]BuildHeader, 0, len(builds))}
		var raceRecord record
		for _, build := range builds {
			key := raceBuild{Race: race, Build: build}
			rec := *columns[key]
			raceRecord.merge(rec)

			rate := rec.rate(0)
			header.Builds = append(header.Builds, BuildHeader{
				Name:    build,
				WinRate: rate,
				Label:   string(build) + " " + rate,
			})
			order = append(order, key)
			report.Opponents = append(report.Opponents, key.String())
			report.ColumnWinRates = append(report.ColumnWinRates, rate)
		}
		header.WinRate = raceRecord.rate(0)
		report.Headers = append(report.Headers, header)
	}

	// Rows, newest group first
	groupIDs := make([]int, 0, len(groups))
	for id := range groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(groupIDs)))

	latest := testlab.SingleRunGroup
	if len(groupIDs) > 0 {
		latest = groupIDs[0]
	}

	for _, id := range groupIDs {
		bucket := groups[id]
		row := GroupRow{
			TestGroupID: id,
			Difficulty:  bucket.difficulty,
			Results:     make([]*testlab.Match, 0, len(order)),
		}

		for _, key := range order {
			m, ok := bucket.matches[key]
			if !ok {
				row.Results = append(row.Results, nil)
				continue
			}
			if id != latest && m.Result == testlab.Pending {
				m.Result = testlab.Aborted
			}
			m.IsBestTime = bestTimes[m.ID]

			row.Results = append(row.Results, m)
		}

		row.WinPercentage = bucket.summary.rate(1)
		row.AvgDuration = bucket.summary.duration.value()
		report.Rows = append(report.Rows, row)
	}

	return report
}
