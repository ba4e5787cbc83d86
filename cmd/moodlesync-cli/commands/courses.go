package commands

import (
	"context"
	"fmt"

	"moodlesync/internal/model"
	"moodlesync/lib/textutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(courseCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Lists the courses the configured account is enrolled in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		courses, err := app.svc.Courses(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable([]any{"ID", "Name", "URL"})
		for _, course := range courses {
			t.AppendRow([]any{course.ID, truncate(course.Name, 48), course.URL})
		}
		t.Render()
		return nil
	},
}

// resolveCourse accepts a course id or something close to a course name.
func resolveCourse(ctx context.Context, query string) (string, error) {
	courses, err := app.svc.Courses(ctx)
	if err != nil {
		return "", err
	}
	names := make([]string, len(courses))
	for i, course := range courses {
		if course.ID == query {
			return course.ID, nil
		}
		names[i] = course.Name
	}
	index, score := textutil.BestMatch(query, names, 0.75)
	if index < 0 {
		return "", fmt.Errorf("no course matches %q: %w", query, model.ErrNotFound)
	}
	if score < 1 {
		fmt.Printf("using %q (similarity %.2f)\n", courses[index].Name, score)
	}
	return courses[index].ID, nil
}

var courseCmd = &cobra.Command{
	Use:   "course <id|name>",
	Short: "Prints the sections and activities of a course.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID, err := resolveCourse(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		course, err := app.svc.Course(cmd.Context(), courseID)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", course.Name, course.URL)
		t := newTable([]any{"Section", "Type", "Activity", "Files"})
		for _, section := range course.Contents {
			if len(section.Activities) == 0 {
				t.AppendRow([]any{section.Title, "", "", ""})
				continue
			}
			for _, activity := range section.Activities {
				t.AppendRow([]any{section.Title, activity.Type, truncate(activity.Name, 48), len(activity.Files)})
			}
		}
		t.SetAutoMergeCells(true)
		t.Render()
		return nil
	},
}
