package source

import (
	"context"
	"errors"
	"sync"

	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/webservice"
)

const report_auto_fallback = "auto.fallback"

// AutoSource prefers web services and falls back to the browser when the
// site does not offer them. Rejected credentials never fall back.
type AutoSource struct {
	token   *TokenSource
	browser *BrowserSource
	tel     telemetry.API

	mu     sync.Mutex
	active Source
}

func NewAuto(opts Options) (*AutoSource, error) {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	token, err := NewToken(opts)
	if err != nil {
		return nil, err
	}
	browser, err := NewBrowser(opts)
	if err != nil {
		return nil, err
	}
	return &AutoSource{
		token:   token,
		browser: browser,
		tel:     telemetry.NewScopedAPI("source", opts.Telemetry),
	}, nil
}

// Mode is ModeAuto until authentication picks a variant.
func (s *AutoSource) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ModeAuto
	}
	return s.active.Mode()
}

func (s *AutoSource) Authenticate(ctx context.Context) error {
	_, err := s.resolve(ctx)
	return err
}

func (s *AutoSource) resolve(ctx context.Context) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return s.active, nil
	}

	err := s.token.Authenticate(ctx)
	if err == nil {
		s.active = s.token
		return s.active, nil
	}
	if !webservice.IsServiceUnavailable(err) {
		return nil, err
	}

	s.tel.ReportWarning(report_auto_fallback, err)
	err = s.browser.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	s.active = s.browser
	return s.active, nil
}

func (s *AutoSource) Courses(ctx context.Context) ([]model.Course, error) {
	src, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return src.Courses(ctx)
}

func (s *AutoSource) CourseContents(ctx context.Context, courseID string) ([]model.Section, error) {
	src, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return src.CourseContents(ctx, courseID)
}

func (s *AutoSource) Assignments(ctx context.Context, courses []model.CourseWithContents) ([]model.Assignment, error) {
	src, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return src.Assignments(ctx, courses)
}

func (s *AutoSource) Events(ctx context.Context) ([]model.Event, error) {
	src, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return Events(ctx, src)
}

func (s *AutoSource) Close() error {
	return errors.Join(s.token.Close(), s.browser.Close())
}
