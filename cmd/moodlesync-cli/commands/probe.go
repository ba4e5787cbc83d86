package commands

import (
	"fmt"

	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/locator"
	"moodlesync/lib/platforms/moodle/webservice"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(pingCmd)
}

func newWebserviceClient() (*webservice.Client, error) {
	cfg := app.cfg.Moodle
	if cfg.BaseUrl == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, model.ConfigurationErrorf("MOODLE_BASE_URL, MOODLE_USERNAME and MOODLE_PASSWORD are required")
	}
	return webservice.NewClient(webservice.ClientOptions{
		BaseUrl: cfg.BaseUrl,
		Output:  app.output,
	})
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Signs in through web services and prints the site info.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newWebserviceClient()
		if err != nil {
			return err
		}
		service := app.cfg.Moodle.Service
		if service == "" {
			service = webservice.DefaultService
		}
		_, err = client.Exchange(cmd.Context(), app.cfg.Moodle.Username, app.cfg.Moodle.Password, service)
		if err != nil {
			return err
		}
		info, err := client.SiteInfo(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable([]any{"Site", "User", "Release", "Language"})
		t.AppendRow([]any{info.SiteName, fmt.Sprintf("%s (%d)", info.FullName, info.UserID), info.Release, info.Lang})
		t.Render()
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Reports which web services the site accepts and what its login page offers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.cfg.Moodle
		client, err := newWebserviceClient()
		if err != nil {
			return err
		}

		services := webservice.ProbeServices
		if cfg.Service != "" && cfg.Service != webservice.DefaultService {
			services = append([]string{cfg.Service}, services...)
		}
		t := newTable([]any{"Service", "Result"})
		for _, result := range client.Probe(cmd.Context(), cfg.Username, cfg.Password, services) {
			outcome := "ok"
			if !result.OK() {
				outcome = result.Err.Error()
			}
			t.AppendRow([]any{result.Service, outcome})
		}
		t.Render()

		doc, err := client.LoginPage(cmd.Context())
		if err != nil {
			return fmt.Errorf("login page: %w", err)
		}
		chains := locator.DefaultChains()
		roles := newTable([]any{"Role", "Strategy", "Selector"})
		for _, role := range []locator.Role{
			locator.RoleUsername,
			locator.RolePassword,
			locator.RoleSubmit,
			locator.RoleSSOEntry,
		} {
			match, err := chains.ForRole(role).Resolve(doc)
			if err != nil {
				roles.AppendRow([]any{role, "-", "not found"})
				continue
			}
			roles.AppendRow([]any{role, fmt.Sprintf("%s (#%d)", match.Strategy, match.Priority), match.Selector})
		}
		roles.Render()
		return nil
	},
}
