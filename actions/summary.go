package actions

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/workflow"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(output(w))
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func elapsed(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return ""
	}
	return end.Sub(start).Round(time.Millisecond).String()
}

// writeRunSummary prints one line per node followed by the run outcome.
func writeRunSummary(w io.Writer, s workflow.RunStatus) {
	table := newTable(w, []string{"Node", "Kind", "State", "Attempts", "Rows", "Elapsed", "Error"})
	for _, n := range s.Nodes {
		rows := ""
		if n.Kind == workflow.KindLoad || n.Kind == workflow.KindTransform {
			rows = fmt.Sprintf("%d", n.RowsAffected)
		}
		table.Append([]string{
			n.ID,
			string(n.Kind),
			n.State.String(),
			fmt.Sprintf("%d", n.Attempts),
			rows,
			elapsed(n.StartTime, n.EndTime),
			n.Error,
		})
	}
	table.SetFooter([]string{"run " + s.RunID, "", s.State.String(), "", "", elapsed(s.StartTime, s.EndTime), ""})
	table.Render()
}

// writeQualityFailures prints each failed data quality check.
func writeQualityFailures(w io.Writer, failures []components.QualityFailure) {
	table := newTable(w, []string{"Table", "Column", "Check", "Detail"})
	for _, f := range failures {
		table.Append([]string{f.Table, f.Column, f.Check, f.Detail})
	}
	table.Render()
}
