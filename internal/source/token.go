package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"moodlesync/internal/adapter"
	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/webservice"
)

const (
	report_token_authenticate = "token.authenticate"
	report_token_assignments  = "token.assignments"
)

// TokenSource reads moodle through the web services api. The token and the
// user id are kept for the life of the source.
type TokenSource struct {
	client   *webservice.Client
	username string
	password string
	service  string
	tel      telemetry.API

	mu     sync.Mutex
	userID int
}

func NewToken(opts Options) (*TokenSource, error) {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	client, err := webservice.NewClient(webservice.ClientOptions{
		BaseUrl:   opts.BaseUrl,
		Telemetry: opts.Telemetry,
		Output:    opts.Diagnostics,
	})
	if err != nil {
		return nil, model.ConfigurationErrorf("%s", err)
	}
	return &TokenSource{
		client:   client,
		username: opts.Username,
		password: opts.Password,
		service:  opts.Service,
		tel:      telemetry.NewScopedAPI("source", opts.Telemetry),
	}, nil
}

func (s *TokenSource) Mode() Mode {
	return ModeToken
}

// Client exposes the underlying web service client, for diagnostics.
func (s *TokenSource) Client() *webservice.Client {
	return s.client
}

func (s *TokenSource) authenticated() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != 0
}

func (s *TokenSource) Authenticate(ctx context.Context) error {
	if _, ok := s.authenticated(); ok {
		return nil
	}

	_, err := s.client.Exchange(ctx, s.username, s.password, s.service)
	if err != nil {
		s.tel.ReportWarning(report_token_authenticate, err)
		var tokenErr *webservice.TokenError
		switch {
		case webservice.IsInvalidLogin(err):
			return &model.AuthenticationError{Reason: "invalid username or password", Err: err}
		case webservice.IsServiceUnavailable(err):
			return &model.AuthenticationError{Reason: "web services are not available", Err: err}
		case errors.As(err, &tokenErr):
			return &model.AuthenticationError{Reason: "token exchange rejected", Err: err}
		}
		return upstream("token exchange", err)
	}

	info, err := s.client.SiteInfo(ctx)
	if err != nil {
		return upstream(webservice.FunctionSiteInfo, err)
	}
	if info.UserID == 0 {
		return &model.AuthenticationError{Reason: "site info did not identify the user"}
	}

	s.mu.Lock()
	s.userID = info.UserID
	s.mu.Unlock()
	s.tel.ReportDebug("authenticated", info.SiteName, info.Username, info.Release)
	return nil
}

func (s *TokenSource) ensure(ctx context.Context) (int, error) {
	if userID, ok := s.authenticated(); ok {
		return userID, nil
	}
	err := s.Authenticate(ctx)
	if err != nil {
		return 0, err
	}
	userID, _ := s.authenticated()
	return userID, nil
}

func (s *TokenSource) Courses(ctx context.Context) ([]model.Course, error) {
	userID, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	courses, err := s.client.UsersCourses(ctx, userID)
	if err != nil {
		return nil, upstream(webservice.FunctionUsersCourses, err)
	}
	out := make([]model.Course, 0, len(courses))
	for _, c := range courses {
		out = append(out, adapter.Course(c, s.client.CourseURL(c.ID)))
	}
	return out, nil
}

func parseCourseID(courseID string) (int, error) {
	id, err := strconv.Atoi(courseID)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("course %q: %w", courseID, model.ErrNotFound)
	}
	return id, nil
}

func (s *TokenSource) CourseContents(ctx context.Context, courseID string) ([]model.Section, error) {
	id, err := parseCourseID(courseID)
	if err != nil {
		return nil, err
	}
	_, err = s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	sections, err := s.client.CourseContents(ctx, id)
	if err != nil {
		return nil, upstream(webservice.FunctionCourseContents, err)
	}
	return adapter.Sections(sections), nil
}

func (s *TokenSource) Assignments(ctx context.Context, courses []model.CourseWithContents) ([]model.Assignment, error) {
	out := []model.Assignment{}
	ids := make([]int, 0, len(courses))
	for _, c := range courses {
		id, err := parseCourseID(c.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, nil
	}

	_, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Assignments(ctx, ids)
	if err != nil {
		return nil, upstream(webservice.FunctionAssignments, err)
	}
	for _, w := range res.Warnings {
		s.tel.ReportWarning(report_token_assignments, fmt.Errorf("%s: %s", w.WarningCode, w.Message), w.Item, w.ItemID)
	}
	for _, course := range res.Courses {
		for _, a := range course.Assignments {
			out = append(out, adapter.Assignment(course, a, s.client.AssignmentURL(a.CMID)))
		}
	}
	return out, nil
}

func (s *TokenSource) Events(ctx context.Context) ([]model.Event, error) {
	_, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.client.UpcomingEvents(ctx)
	if err != nil {
		return nil, upstream(webservice.FunctionUpcomingEvents, err)
	}
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		out = append(out, adapter.Event(e))
	}
	return out, nil
}

// Close has nothing to release, the http client is reused until the source
// is dropped.
func (s *TokenSource) Close() error {
	return nil
}
