package commands

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(app.clock.Location()).Format("2006-01-02 15:04")
}

func truncate(value string, width int) string {
	return text.Trim(value, width)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
