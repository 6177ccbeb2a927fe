package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(tw *tabwriter.Writer, cells ...string) {
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
}

// WriteGroups renders the group pivot as an aligned text table. Cells show
// the result initial and duration; a trailing * marks a best time.
func WriteGroups(w io.Writer, rep GroupReport) error {
	tw := newTable(w)

	header := []string{"GROUP", "DIFFICULTY"}
	for _, race := range rep.Headers {
		for _, b := range race.Builds {
			header = append(header, string(race.Name)+"-"+b.Label)
		}
	}
	row(tw, append(header, "WIN%", "AVG")...)

	for _, r := range rep.Rows {
		cells := []string{fmt.Sprint(r.TestGroupID), string(r.Difficulty)}
		for _, m := range r.Results {
			if m == nil {
				cells = append(cells, NoRate)
				continue
			}
			cell := m.Result.Initial() + " " + FormatDuration(m.DurationSeconds)
			if m.IsBestTime {
				cell += "*"
			}
			cells = append(cells, cell)
		}
		row(tw, append(cells, r.WinPercentage, FormatDuration(r.AvgDuration))...)
	}

	if len(rep.Rows) > 0 {
		footer := append([]string{"", "WIN%"}, rep.ColumnWinRates...)
		row(tw, append(footer, "", "")...)
	}
	return tw.Flush()
}

// WriteMaps renders the map breakdown; cells are "rate wins/games avg"
func WriteMaps(w io.Writer, rep MapReport) error {
	tw := newTable(w)

	row(tw, append(append([]string{"MAP"}, rep.Opponents...), "OVERALL")...)

	for _, r := range rep.Rows {
		cells := []string{r.MapName}
		for _, c := range r.Results {
			cells = append(cells, mapCellText(c.WinRate, c.Wins, c.Games, c.AvgDuration))
		}
		cells = append(cells, mapCellText(r.OverallWinRate, r.OverallWins, r.OverallGames, r.OverallAvgDuration))
		row(tw, cells...)
	}
	return tw.Flush()
}

func mapCellText(rate *string, wins, games int, avg *int) string {
	if rate == nil {
		return NoRate
	}
	return fmt.Sprintf("%s %d/%d %s", *rate, wins, games, FormatDuration(avg))
}

// WriteBuildings renders the timing report; cells are "min/avg/max class"
func WriteBuildings(w io.Writer, rep TimingReport) error {
	tw := newTable(w)

	row(tw, append([]string{"GROUP"}, rep.Buildings...)...)

	ref := []string{"REFERENCE"}
	for _, avg := range rep.ReferenceAverages {
		ref = append(ref, FormatSeconds(avg))
	}
	row(tw, ref...)

	for _, r := range rep.Rows {
		cells := []string{fmt.Sprint(r.TestGroupID)}
		for _, t := range r.Timings {
			if t == nil {
				cells = append(cells, NoRate)
				continue
			}
			cells = append(cells, fmt.Sprintf("%s(%s)/%s/%s(%s) %s",
				FormatSeconds(t.Min), t.MinResult.Initial(),
				FormatSeconds(t.Avg),
				FormatSeconds(t.Max), t.MaxResult.Initial(),
				t.Performance))
		}
		row(tw, cells...)
	}
	return tw.Flush()
}
