package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"paytrack/internal/service"
)

// printReport writes one line per row, and one line per rejected field.
func printReport(out io.Writer, source string, report service.ImportReport) error {
	mode := ""
	if report.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "%s%s: %d rows, %d imported, %d failed\n\n", source, mode, report.Total, report.Imported, report.Failed)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tRESULT\tDETAIL")
	for _, row := range report.Rows {
		switch {
		case len(row.Errors) > 0:
			for _, fe := range row.Errors {
				fmt.Fprintf(tw, "%d\t%s\t%s: %s\n", row.Line, fe.Kind, fe.Field, fe.Message)
			}
		case row.Error != "":
			fmt.Fprintf(tw, "%d\terror\t%s\n", row.Line, row.Error)
		case report.DryRun:
			fmt.Fprintf(tw, "%d\tvalid\t\n", row.Line)
		default:
			fmt.Fprintf(tw, "%d\timported\t%s\n", row.Line, row.ID)
		}
	}
	return tw.Flush()
}
