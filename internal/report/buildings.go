package report

import (
	"sort"

	"testlab/internal/testlab"
)

// Performance classifies a group's build timing against the reference
type Performance string

const (
	MuchFaster     Performance = "much-faster"
	Faster         Performance = "faster"
	SlightlyFaster Performance = "slightly-faster"
	Average        Performance = "average"
	SlightlySlower Performance = "slightly-slower"
	Slower         Performance = "slower"
	MuchSlower     Performance = "much-slower"
)

// Classify buckets diff, in seconds, where negative means faster than the
// reference. The checks run in this order; only an exact 0 is Average.
func Classify(diff float64) Performance {
	switch {
	case diff < -10:
		return MuchFaster
	case diff < -5:
		return Faster
	case diff < 0:
		return SlightlyFaster
	case diff > 10:
		return MuchSlower
	case diff > 5:
		return Slower
	case diff > 0:
		return SlightlySlower
	default:
		return Average
	}
}

// Timing is the earliest construction time of one building in one group
type Timing struct {
	Min         float64        `json:"min"`
	MinResult   testlab.Result `json:"minResult"`
	Max         float64        `json:"max"`
	MaxResult   testlab.Result `json:"maxResult"`
	Avg         float64        `json:"avg"`
	Matches     int            `json:"matches"`
	Performance Performance    `json:"performanceClass"`
}

// TimingRow is one test group; Timings is aligned with TimingReport.Buildings
type TimingRow struct {
	TestGroupID int       `json:"testGroupId"`
	Timings     []*Timing `json:"timings"`
}

// TimingReport pivots test groups against building types
type TimingReport struct {
	Buildings         []string    `json:"buildingTypes"`
	ReferenceAverages []float64   `json:"avgTimings"`
	Rows              []TimingRow `json:"rows"`
}

type groupBuilding struct {
	Group    int
	Building string
}

type matchBuilding struct {
	MatchID  int64
	Building string
}

// earliest is the first time one match started a building
type earliest struct {
	groupBuilding
	matchID   int64
	timestamp float64
	result    testlab.Result
}

// timingAcc accumulates per-match earliest times for a group and building
type timingAcc struct {
	timing Timing
	sum    float64
}

func (a *timingAcc) add(e earliest) {
	if a.timing.Matches == 0 {
		a.timing.Min, a.timing.MinResult = e.timestamp, e.result
		a.timing.Max, a.timing.MaxResult = e.timestamp, e.result
	} else {
		if e.timestamp < a.timing.Min {
			a.timing.Min, a.timing.MinResult = e.timestamp, e.result
		}
		if e.timestamp > a.timing.Max {
			a.timing.Max, a.timing.MaxResult = e.timestamp, e.result
		}
	}
	a.sum += e.timestamp
	a.timing.Matches++
}

// BuildingTiming builds the test group × building table from Building
// events. Each match contributes its earliest time per building; a group's
// average is taken over its matches, and the reference for a building is
// the mean of the group averages. Buildings are ordered by that reference,
// fastest first.
func BuildingTiming(events []testlab.BuildingEvent) TimingReport {
	// Pass 1: earliest time per match and building
	perMatch := make(map[matchBuilding]*earliest)
	for _, ev := range events {
		key := matchBuilding{MatchID: ev.MatchID, Building: ev.Building}
		cur, ok := perMatch[key]
		if !ok {
			perMatch[key] = &earliest{
				groupBuilding: groupBuilding{Group: ev.TestGroupID, Building: ev.Building},
				matchID:       ev.MatchID,
				timestamp:     ev.GameTimestamp,
				result:        ev.Result,
			}
			continue
		}
		if ev.GameTimestamp < cur.timestamp {
			cur.timestamp = ev.GameTimestamp
		}
	}

	firsts := make([]*earliest, 0, len(perMatch))
	for _, e := range perMatch {
		firsts = append(firsts, e)
	}
	sort.Slice(firsts, func(i, j int) bool {
		a, b := firsts[i], firsts[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.Building != b.Building {
			return a.Building < b.Building
		}
		return a.matchID < b.matchID
	})

	// Pass 2: per group and building
	accs := make(map[groupBuilding]*timingAcc)
	groupSet := make(map[int]struct{})
	buildingSet := make(map[string]struct{})
	for _, e := range firsts {
		acc, ok := accs[e.groupBuilding]
		if !ok {
			acc = &timingAcc{}
			accs[e.groupBuilding] = acc
		}
		acc.add(*e)
		groupSet[e.Group] = struct{}{}
		buildingSet[e.Building] = struct{}{}
	}
	for _, acc := range accs {
		acc.timing.Avg = acc.sum / float64(acc.timing.Matches)
	}

	groups := make([]int, 0, len(groupSet))
	for group := range groupSet {
		groups = append(groups, group)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(groups)))

	// Pass 3: reference average per building
	reference := make(map[string]float64, len(buildingSet))
	buildings := make([]string, 0, len(buildingSet))
	for building := range buildingSet {
		var total float64
		var n int
		for _, group := range groups {
			if acc, ok := accs[groupBuilding{Group: group, Building: building}]; ok {
				total += acc.timing.Avg
				n++
			}
		}
		reference[building] = total / float64(n)
		buildings = append(buildings, building)
	}
	sort.Slice(buildings, func(i, j int) bool {
		ri, rj := reference[buildings[i]], reference[buildings[j]]
		if ri != rj {
			return ri < rj
		}
		return buildings[i] < buildings[j]
	})

	report := TimingReport{
		Buildings:         buildings,
		ReferenceAverages: make([]float64, 0, len(buildings)),
		Rows:              make([]TimingRow, 0, len(groups)),
	}
	for _, building := range buildings {
		report.ReferenceAverages = append(report.ReferenceAverages, reference[building])
	}

	for _, group := range groups {
		row := TimingRow{TestGroupID: group, Timings: make([]*Timing, 0, len(buildings))}
		for _, building := range buildings {
			acc, ok := accs[groupBuilding{Group: group, Building: building}]
			if !ok {
				row.Timings = append(row.Timings, nil)
				continue
			}
			t := acc.timing
			t.Performance = Classify(t.Avg - reference[building])
			row.Timings = append(row.Timings, &t)
		}
		report.Rows = append(report.Rows, row)
	}

	return report
}
