package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"record-sync/core/reconcile"
	"record-sync/feature/coverage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

// renderSummary renders the outcome counts of a run.
func renderSummary(s *reconcile.Summary) string {
	tw := newTable()
	tw.SetTitle("Records sync %s  %s .. %s", s.Kind, s.Start.Format(windowLayout), s.End.Format(windowLayout))
	tw.AppendRows([]table.Row{
		{"run id", s.RunID},
		{"task id", s.TaskID},
		{"local server", int(s.NodeID)},
		{"sync mode", s.Sync},
		{"weak records", s.WeakRecords},
		{"gaps", s.Gaps},
		{"updated", s.Updated},
		{"no need", s.NoNeed},
		{"no find", s.NoFind},
		{"no success", s.NoSuccess},
		{"total", s.Total},
		{"duration", s.Duration().Round(time.Millisecond)},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return tw.Render()
}

// renderCoverage renders one row per covered span and gap of every stream.
func renderCoverage(r *coverage.Report) string {
	tw := newTable()
	tw.SetTitle("Coverage %s  %s .. %s", r.Kind, r.Start.Format(windowLayout), r.End.Format(windowLayout))
	tw.AppendHeader(table.Row{"stream", "name", "state", "start", "end", "length"})

	for _, s := range r.Streams {
		id := strconv.Itoa(s.StreamID)
		for _, c := range s.Covered {
			tw.AppendRow(table.Row{id, s.Name, "covered", c.Start.Format(time.DateTime), c.End.Format(time.DateTime), seconds(c.Seconds)})
		}
		for _, g := range s.Gaps {
			state := "gap"
			if !g.Actionable {
				state = "gap (ignored)"
			}
			tw.AppendRow(table.Row{id, s.Name, state, g.Start.Format(time.DateTime), g.End.Format(time.DateTime), seconds(g.Seconds)})
		}
		tw.AppendFooter(table.Row{id, s.Name, fmt.Sprintf("%.1f%% covered", 100*s.Ratio), "", fmt.Sprintf("%d weak", s.WeakRecords), seconds(s.CoveredSeconds)})
	}
	tw.SortBy([]table.SortBy{{Number: 1, Mode: table.AscNumeric}, {Number: 4, Mode: table.Asc}})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 6, Align: text.AlignRight}})
	return tw.Render()
}

func seconds(s float64) string {
	return (time.Duration(s) * time.Second).String()
}
