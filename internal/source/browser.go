package source

import (
	"context"
	"errors"
	"sync"

	"moodlesync/internal/adapter"
	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/browser"
)

const report_browser_assignments = "browser.assignments"

// BrowserSource reads moodle through a browser it launches on the first
// Authenticate. Close terminates the browser.
type BrowserSource struct {
	opts   Options
	launch Launcher
	tel    telemetry.API

	mu            sync.Mutex
	session       *browser.Session
	authenticated bool
}

func NewBrowser(opts Options) (*BrowserSource, error) {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	return &BrowserSource{
		opts:   opts,
		launch: opts.launcher(),
		tel:    telemetry.NewScopedAPI("source", opts.Telemetry),
	}, nil
}

func (s *BrowserSource) Mode() Mode {
	return ModeBrowser
}

func (s *BrowserSource) open(ctx context.Context) (*browser.Session, error) {
	if s.session != nil {
		return s.session, nil
	}
	page, err := s.launch(ctx)
	if err != nil {
		return nil, upstream("launch browser", err)
	}
	session, err := browser.NewSession(page, browser.Options{
		BaseUrl:   s.opts.BaseUrl,
		Telemetry: s.opts.Telemetry,
		Capture:   s.opts.Diagnostics,
	})
	if err != nil {
		_ = page.Close()
		return nil, model.ConfigurationErrorf("%s", err)
	}
	s.session = session
	return session, nil
}

func (s *BrowserSource) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticate(ctx)
}

func (s *BrowserSource) authenticate(ctx context.Context) error {
	if s.authenticated {
		return nil
	}
	session, err := s.open(ctx)
	if err != nil {
		return err
	}
	err = session.Login(ctx, s.opts.Username, s.opts.Password)
	if err != nil {
		reason := "browser sign in failed"
		if errors.Is(err, browser.ErrRejected) {
			reason = "invalid username or password"
		}
		return &model.AuthenticationError{Reason: reason, Err: err}
	}
	s.authenticated = true
	return nil
}

// ready returns a signed in session, the lock must be held.
func (s *BrowserSource) ready(ctx context.Context) (*browser.Session, error) {
	err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return s.session, nil
}

func (s *BrowserSource) expired(err error) error {
	if errors.Is(err, browser.ErrSessionExpired) {
		s.authenticated = false
		return &model.AuthenticationError{Reason: "browser session expired", Err: err}
	}
	return err
}

func (s *BrowserSource) Courses(ctx context.Context) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	courses, err := session.Courses(ctx)
	if err != nil {
		return nil, upstream("list courses", s.expired(err))
	}
	out := make([]model.Course, 0, len(courses))
	for _, c := range courses {
		out = append(out, adapter.BrowserCourse(c))
	}
	return out, nil
}

func (s *BrowserSource) CourseContents(ctx context.Context, courseID string) ([]model.Section, error) {
	if _, err := parseCourseID(courseID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	sections, err := session.CourseContents(ctx, courseID)
	if err != nil {
		return nil, upstream("course contents", s.expired(err))
	}
	return adapter.BrowserSections(sections), nil
}

// Assignments derives assignments from course contents, fetching them for
// courses that have none. A course that fails to load contributes nothing.
func (s *BrowserSource) Assignments(ctx context.Context, courses []model.CourseWithContents) ([]model.Assignment, error) {
	out := []model.Assignment{}
	for _, course := range courses {
		if course.Contents == nil {
			contents, err := s.CourseContents(ctx, course.ID)
			if model.IsAuthentication(err) {
				return nil, err
			}
			if err != nil {
				s.tel.ReportWarning(report_browser_assignments, err, course.ID)
				continue
			}
			course.Contents = contents
		}
		out = append(out, adapter.DeriveAssignments(course)...)
	}
	return out, nil
}

func (s *BrowserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	s.authenticated = false
	return err
}
