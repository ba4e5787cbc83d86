// Package source hides whether moodle is read through web services or a
// browser. A Source is owned by a single sync and released with Close.
package source

import (
	"context"
	"errors"
	"strings"

	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/browser"
	"moodlesync/lib/restyutil"
)

type Mode string

const (
	ModeToken   Mode = "token"
	ModeBrowser Mode = "browser"
	ModeAuto    Mode = "auto"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeToken, "":
		return ModeToken, nil
	case ModeBrowser:
		return ModeBrowser, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", model.ConfigurationErrorf("unknown mode %q, expected token, browser or auto", raw)
}

// Source reads a single user's courses. Every read authenticates first if
// Authenticate has not succeeded yet.
type Source interface {
	// Mode is the variant in use, for auto it is the one authentication
	// settled on.
	Mode() Mode
	Authenticate(ctx context.Context) error
	Courses(ctx context.Context) ([]model.Course, error)
	CourseContents(ctx context.Context, courseID string) ([]model.Section, error)
	// Assignments lists the assignments of the given courses. Courses whose
	// Contents are nil may have them fetched.
	Assignments(ctx context.Context, courses []model.CourseWithContents) ([]model.Assignment, error)
	Close() error
}

// EventSource is implemented by sources that can list upcoming calendar
// events.
type EventSource interface {
	Events(ctx context.Context) ([]model.Event, error)
}

// Diagnostics receives dumps of failed web service exchanges and browser
// captures, restyutil.FilesystemOutput implements it.
type Diagnostics interface {
	restyutil.InstrumentOutput
	browser.CaptureSink
}

// Launcher starts the browser page a browser source signs in with.
type Launcher func(ctx context.Context) (browser.Page, error)

type Options struct {
	Mode     Mode
	BaseUrl  string
	Username string
	Password string
	// Service is the web service name, defaults to moodle_mobile_app.
	Service string

	Headless       bool
	ExecPath       string
	AcceptLanguage string
	// Launch overrides how the browser is started.
	Launch Launcher

	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry   telemetry.API
	Diagnostics Diagnostics
}

func (o Options) launcher() Launcher {
	if o.Launch != nil {
		return o.Launch
	}
	return func(ctx context.Context) (browser.Page, error) {
		return browser.Launch(ctx, browser.LaunchOptions{
			Headless:       o.Headless,
			ExecPath:       o.ExecPath,
			AcceptLanguage: o.AcceptLanguage,
		})
	}
}

// New builds the source selected by opts.Mode. Missing base url or
// credentials are a configuration error.
func New(opts Options) (Source, error) {
	var missing []string
	if strings.TrimSpace(opts.BaseUrl) == "" {
		missing = append(missing, "base url")
	}
	if opts.Username == "" {
		missing = append(missing, "username")
	}
	if opts.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, model.ConfigurationErrorf("missing %s", strings.Join(missing, ", "))
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}

	switch opts.Mode {
	case ModeToken, "":
		return NewToken(opts)
	case ModeBrowser:
		return NewBrowser(opts)
	case ModeAuto:
		return NewAuto(opts)
	}
	return nil, model.ConfigurationErrorf("unknown mode %q", opts.Mode)
}

// Events lists upcoming events when src supports it and fails with
// model.ErrUnsupported otherwise.
func Events(ctx context.Context, src Source) ([]model.Event, error) {
	events, ok := src.(EventSource)
	if !ok {
		return nil, model.ErrUnsupported
	}
	return events.Events(ctx)
}

func upstream(operation string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *model.AuthenticationError
	var upstreamErr *model.UpstreamAPIError
	if errors.As(err, &authErr) || errors.As(err, &upstreamErr) || errors.Is(err, model.ErrNotFound) {
		return err
	}
	return &model.UpstreamAPIError{Operation: operation, Err: err}
}
