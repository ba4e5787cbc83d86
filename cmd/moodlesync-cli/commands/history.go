package commands

import (
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().IntP("limit", "n", 20, "The number of runs to print.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>]",
	Short: "Prints the most recent sync runs recorded in RUNLOG_DB.",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := app.svc.History(cmd.Context(), *historyLimit)
		if err != nil {
			return err
		}
		t := newTable([]any{"Run", "Mode", "Started", "Took", "Courses", "Assignments", "Message"})
		for _, run := range runs {
			started := run.StartedAt
			t.AppendRow([]any{
				run.ID,
				run.Mode,
				formatTime(&started),
				formatDuration(run.FinishedAt.Sub(run.StartedAt)),
				run.CoursesCount,
				run.AssignmentsCount,
				truncate(run.Message, 60),
			})
		}
		t.Render()
		return nil
	},
}
