package service

import (
	"context"
	"errors"
	"fmt"

	"moodlesync/internal/model"
	"moodlesync/internal/runlog"
	"moodlesync/internal/source"
)

type LoginResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Login checks that creds can sign in and releases the session right after.
// The returned session id is random and does not identify the moodle
// session. Only configuration problems are returned as errors.
func (s *Service) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	src, err := s.open(creds)
	if err != nil {
		return LoginResult{}, err
	}
	defer s.close(src)

	err = src.Authenticate(ctx)
	if err != nil {
		s.tel.ReportWarning(report_service_login, err, src.Mode())
		return LoginResult{Success: false, Message: err.Error()}, nil
	}

	sessionID, err := s.rand.SessionID()
	if err != nil {
		s.tel.ReportBroken(report_rand_session_id, err)
		return LoginResult{}, err
	}
	return LoginResult{
		Success:   true,
		Message:   fmt.Sprintf("Logged in to moodle (%s)", src.Mode()),
		SessionID: sessionID,
	}, nil
}

// Courses lists the courses of the default account.
func (s *Service) Courses(ctx context.Context) ([]model.Course, error) {
	src, err := s.open(Credentials{})
	if err != nil {
		return nil, err
	}
	defer s.close(src)
	return src.Courses(ctx)
}

func findCourse(courses []model.Course, courseID string) (model.Course, error) {
	for _, c := range courses {
		if c.ID == courseID {
			return c, nil
		}
	}
	return model.Course{}, fmt.Errorf("course %s: %w", courseID, model.ErrNotFound)
}

// Course returns one course of the default account with its contents.
func (s *Service) Course(ctx context.Context, courseID string) (model.CourseWithContents, error) {
	src, err := s.open(Credentials{})
	if err != nil {
		return model.CourseWithContents{}, err
	}
	defer s.close(src)

	courses, err := src.Courses(ctx)
	if err != nil {
		return model.CourseWithContents{}, err
	}
	course, err := findCourse(courses, courseID)
	if err != nil {
		return model.CourseWithContents{}, err
	}
	contents, err := src.CourseContents(ctx, course.ID)
	if err != nil {
		return model.CourseWithContents{}, err
	}
	if contents == nil {
		contents = []model.Section{}
	}
	return model.CourseWithContents{Course: course, Contents: contents}, nil
}

// Assignments lists the assignments of the default account, only those of
// one course when courseID is not empty.
func (s *Service) Assignments(ctx context.Context, courseID string) ([]model.Assignment, error) {
	src, err := s.open(Credentials{})
	if err != nil {
		return nil, err
	}
	defer s.close(src)

	courses, err := src.Courses(ctx)
	if err != nil {
		return nil, err
	}
	if courseID != "" {
		course, err := findCourse(courses, courseID)
		if err != nil {
			return nil, err
		}
		courses = []model.Course{course}
	}

	scoped := make([]model.CourseWithContents, 0, len(courses))
	for _, c := range courses {
		scoped = append(scoped, model.CourseWithContents{Course: c})
	}
	return src.Assignments(ctx, scoped)
}

// Events lists upcoming calendar events, sources without web services fail
// with model.ErrUnsupported.
func (s *Service) Events(ctx context.Context) ([]model.Event, error) {
	src, err := s.open(Credentials{})
	if err != nil {
		return nil, err
	}
	defer s.close(src)
	return source.Events(ctx, src)
}

// History returns the latest sync runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]runlog.Run, error) {
	if s.journal == nil {
		return []runlog.Run{}, nil
	}
	runs, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	return runs, nil
}

// IsClientError reports whether err was caused by the credentials or ids the
// caller passed rather than by moodle or this service. A configuration error
// only points at the caller when the caller supplied the credentials.
func IsClientError(err error) bool {
	return errors.Is(err, model.ErrConfiguration) || errors.Is(err, model.ErrNotFound)
}
