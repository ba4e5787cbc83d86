package main

import (
	"context"
	"log/slog"
	"time"

	"moodlesync/internal/components/chrono"
	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/config"
	"moodlesync/internal/runlog"
	"moodlesync/internal/server"
	"moodlesync/internal/service"
	"moodlesync/lib/restyutil"
	"moodlesync/lib/serviceutil"
	libtelemetry "moodlesync/lib/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		serviceutil.Fatal("load config", err)
	}
	telemetry.InitSlog(cfg.Verbose)

	ctx := serviceutil.SignalContext()

	otel, err := libtelemetry.SetupFromEnv(ctx, "moodlesync-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := otel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	libtelemetry.InstrumentPerfStats(ctx, time.Second*15)

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}

	diagnostics, err := restyutil.NewFilesystemOutput(cfg.DiagnosticsDir)
	if err != nil {
		serviceutil.Fatal("create diagnostics directory", err)
	}
	slog.Info("writing diagnostics", "dir", diagnostics.Directory())

	journal, err := runlog.Open(ctx, cfg.RunlogDB, runlog.Options{})
	if err != nil {
		serviceutil.Fatal("open run journal", err)
	}
	defer journal.Close()

	template, err := cfg.SourceOptions(diagnostics)
	if err != nil {
		serviceutil.Fatal("source options", err)
	}
	svc := service.New(
		service.NewSourceFactory(template),
		cfg.Credentials(),
		service.WithClock(clock),
		service.WithJournal(journal),
	)

	srv := server.New(svc, server.Options{
		ApiKey:         cfg.ApiKey,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultBaseUrl: cfg.Moodle.BaseUrl,
	})

	err = serviceutil.StartHttpServer(ctx, cfg.Addr(), srv.Handler())
	if err != nil {
		slog.Error("http server stopped", "err", err)
	}
}
