// Package report turns flat match and event records into the pivot tables
// shown on the test lab dashboard.
package report

import (
	"fmt"

	"testlab/internal/testlab"
)

// NoRate is shown in place of a win rate when nothing was decided
const NoRate = "-"

// record holds running win/loss counts. Only decided games are counted.
type record struct {
	Wins  int
	Games int
}

func (r *record) add(res testlab.Result) {
	if !res.Decided() {
		return
	}
	r.Games++
	if res == testlab.Victory {
		r.Wins++
	}
}

func (r *record) merge(o record) {
	r.Wins += o.Wins
	r.Games += o.Games
}

// percent returns the win percentage, or false when no game was decided
func (r record) percent() (float64, bool) {
	if r.Games == 0 {
		return 0, false
	}
	return float64(r.Wins) / float64(r.Games) * 100, true
}

// rate formats the win percentage with the given precision, or NoRate
func (r record) rate(decimals int) string {
	pct, ok := r.percent()
	if !ok {
		return NoRate
	}
	return formatPercent(pct, decimals)
}

// ratePtr is rate with nil in place of NoRate
func (r record) ratePtr(decimals int) *string {
	pct, ok := r.percent()
	if !ok {
		return nil
	}
	s := formatPercent(pct, decimals)
	return &s
}

// mean is a running average over usable durations
type mean struct {
	Total int
	Count int
}

func (m *mean) add(match *testlab.Match) {
	if d, ok := match.Duration(); ok {
		m.Total += d
		m.Count++
	}
}

func (m *mean) merge(o mean) {
	m.Total += o.Total
	m.Count += o.Count
}

// value truncates toward zero like the dashboard always has
func (m mean) value() *int {
	if m.Count == 0 {
		return nil
	}
	v := m.Total / m.Count
	return &v
}

// cell is the accumulator behind one (row, opponent) pivot cell
type cell struct {
	record
	duration mean
}

func (c *cell) add(m *testlab.Match) {
	c.record.add(m.Result)
	c.duration.add(m)
}

func (c *cell) merge(o cell) {
	c.record.merge(o.record)
	c.duration.merge(o.duration)
}

func formatPercent(pct float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, pct)
}
