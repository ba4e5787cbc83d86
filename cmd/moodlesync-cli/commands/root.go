package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"moodlesync/internal/components/chrono"
	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/config"
	"moodlesync/internal/runlog"
	"moodlesync/internal/service"
	"moodlesync/lib/restyutil"
	libtelemetry "moodlesync/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	modeFlag    *string
	verboseFlag *bool
	headfulFlag *bool
)

// app is filled in by the root command before any subcommand runs.
var app struct {
	cfg     config.Config
	svc     *service.Service
	journal *runlog.Journal
	clock   chrono.StandardImpl
	output  restyutil.FilesystemOutput
	otel    libtelemetry.Telemetry
}

func init() {
	modeFlag = rootCmd.PersistentFlags().String("mode", "", "Override MOODLE_MODE (token, browser or auto).")
	verboseFlag = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging and dump every http exchange.")
	headfulFlag = rootCmd.PersistentFlags().Bool("headful", false, "Show the browser window in browser mode.")
}

var rootCmd = &cobra.Command{
	Use:           "moodlesync-cli",
	Short:         "moodlesync-cli syncs and inspects a moodle account from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if *modeFlag != "" {
			cfg.Moodle.Mode = strings.ToLower(*modeFlag)
		}
		if *headfulFlag {
			headless := false
			cfg.Moodle.Headless = &headless
		}
		cfg.Verbose = cfg.Verbose || *verboseFlag
		err = config.Validate(cfg)
		if err != nil {
			return err
		}
		telemetry.InitSlog(cfg.Verbose)

		app.otel, err = libtelemetry.SetupFromEnv(cmd.Context(), "moodlesync-cli")
		if err != nil {
			return err
		}
		app.clock, err = chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}
		app.output, err = restyutil.NewFilesystemOutput(cfg.DiagnosticsDir)
		if err != nil {
			return err
		}
		app.journal, err = runlog.Open(cmd.Context(), cfg.RunlogDB, runlog.Options{})
		if err != nil {
			return err
		}
		template, err := cfg.SourceOptions(app.output)
		if err != nil {
			return err
		}

		app.cfg = cfg
		app.svc = service.New(
			service.NewSourceFactory(template),
			cfg.Credentials(),
			service.WithClock(app.clock),
			service.WithJournal(app.journal),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.journal != nil {
			app.journal.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		app.otel.Shutdown(ctx)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
