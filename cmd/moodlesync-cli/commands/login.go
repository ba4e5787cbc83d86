package commands

import (
	"fmt"

	"moodlesync/internal/service"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Checks that the configured account can sign in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.svc.Login(cmd.Context(), service.Credentials{})
		if err != nil {
			return err
		}
		fmt.Println(result.Message)
		if !result.Success {
			return fmt.Errorf("login failed")
		}
		return nil
	},
}
