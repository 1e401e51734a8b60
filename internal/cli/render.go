package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/roach88/tablehook/internal/engine"
	"github.com/roach88/tablehook/internal/store"
)

const displayTime = "2006-01-02 15:04:05"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// writeStatus renders recipe status as a table or as JSON.
func writeStatus(w io.Writer, format string, status []engine.Status) error {
	f := &OutputFormatter{Format: format, Writer: w}
	return f.Render(map[string]any{"recipes": status}, func(w io.Writer) error {
		if len(status) == 0 {
			_, err := fmt.Fprintln(w, "No recipes loaded.")
			return err
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "RECIPE\tSTATE\tLAST POLL")
		for _, s := range status {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.State, formatDisplayTime(s.LastPoll))
		}
		return tw.Flush()
	})
}

// writeHistory renders journal deliveries as a table or as JSON.
func writeHistory(w io.Writer, format string, deliveries []store.Delivery) error {
	f := &OutputFormatter{Format: format, Writer: w}
	return f.Render(map[string]any{"deliveries": deliveries}, func(w io.Writer) error {
		if len(deliveries) == 0 {
			_, err := fmt.Fprintln(w, "No deliveries recorded.")
			return err
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "TIME\tRECIPE\tRECORD\tACTION\tSTATUS\tURL")
		for _, d := range deliveries {
			status := string(d.Status)
			if d.Error != "" {
				status += ": " + d.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t#%d\t%s\t%s\n",
				formatDisplayTime(d.CreatedAt), d.Recipe, d.RecordID, d.ActionIndex, status, d.URL)
		}
		return tw.Flush()
	})
}

// writeCycles renders journal cycles as a table or as JSON.
func writeCycles(w io.Writer, format string, cycles []store.Cycle) error {
	f := &OutputFormatter{Format: format, Writer: w}
	return f.Render(map[string]any{"cycles": cycles}, func(w io.Writer) error {
		if len(cycles) == 0 {
			_, err := fmt.Fprintln(w, "No cycles recorded.")
			return err
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "STARTED\tRECIPE\tFETCHED\tNEW\tUPDATED\tFRESH\tRESULT")
		for _, c := range cycles {
			result := "ok"
			switch {
			case c.Error != "":
				result = "error: " + c.Error
			case c.FinishedAt.IsZero():
				result = "in progress"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				formatDisplayTime(c.StartedAt), c.Recipe, c.Fetched, c.New, c.Updated, c.Fresh, result)
		}
		return tw.Flush()
	})
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(displayTime)
}
