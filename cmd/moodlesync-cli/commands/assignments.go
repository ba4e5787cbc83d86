package commands

import (
	"github.com/spf13/cobra"
)

var assignmentsCourse *string

func init() {
	assignmentsCourse = assignmentsCmd.Flags().String("course", "", "Only list the assignments of this course (id or name).")
	rootCmd.AddCommand(assignmentsCmd)
	rootCmd.AddCommand(eventsCmd)
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments [--course <id|name>]",
	Short: "Lists assignments and their due dates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID := ""
		if *assignmentsCourse != "" {
			var err error
			courseID, err = resolveCourse(cmd.Context(), *assignmentsCourse)
			if err != nil {
				return err
			}
		}
		assignments, err := app.svc.Assignments(cmd.Context(), courseID)
		if err != nil {
			return err
		}
		t := newTable([]any{"Course", "Assignment", "Due", "Status"})
		for _, a := range assignments {
			t.AppendRow([]any{truncate(a.CourseName, 32), truncate(a.Name, 48), formatTime(a.DueDate), a.Status})
		}
		t.Render()
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Lists upcoming calendar events, web services only.",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := app.svc.Events(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable([]any{"Start", "Course", "Event", "Type"})
		for _, e := range events {
			start := e.Start
			t.AppendRow([]any{formatTime(&start), truncate(e.CourseName, 32), truncate(e.Name, 48), e.Type})
		}
		t.Render()
		return nil
	},
}
