package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"moodlesync/internal/service"

	"github.com/spf13/cobra"
)

var syncOut *string

func init() {
	syncOut = syncCmd.Flags().StringP("out", "o", "", "Write the full sync result as json to this file.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--out <path/to/result.json>]",
	Short: "Runs a full sync with the configured account and prints a summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := app.svc.SyncAll(cmd.Context(), service.Credentials{})

		if *syncOut != "" {
			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			err = os.WriteFile(*syncOut, encoded, 0600)
			if err != nil {
				return fmt.Errorf("write sync result: %w", err)
			}
		}

		fmt.Printf("run %s: %s\n", result.RunID, result.Message)
		if !result.Success {
			return fmt.Errorf("sync failed")
		}

		t := newTable([]any{"Course", "Sections", "Activities"})
		for _, course := range result.Data.Courses {
			activities := 0
			for _, section := range course.Contents {
				activities += len(section.Activities)
			}
			t.AppendRow([]any{truncate(course.Name, 48), len(course.Contents), activities})
		}
		t.Render()
		return nil
	},
}
