package service

import (
	"context"
	"fmt"

	"moodlesync/internal/components/assert"
	"moodlesync/internal/model"
	"moodlesync/internal/runlog"
	"moodlesync/internal/source"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("moodlesync/internal/service")

// transitions lists the states each state may move to. Only authenticating
// and listing courses can fail a run, a course that fails to load is
// recorded as empty. An account without courses goes straight to
// aggregating.
var transitions = map[model.SyncState][]model.SyncState{
	model.StateIdle:                  {model.StateAuthenticating},
	model.StateAuthenticating:        {model.StateListingCourses, model.StateFailed},
	model.StateListingCourses:        {model.StateFetchingCourseDetails, model.StateAggregating, model.StateFailed},
	model.StateFetchingCourseDetails: {model.StateFetchingCourseDetails, model.StateAggregating},
	model.StateAggregating:           {model.StateDone},
}

type syncRun struct {
	id      string
	state   model.SyncState
	service *Service
}

func (r *syncRun) enter(to model.SyncState, params ...any) {
	allowed := false
	for _, next := range transitions[r.state] {
		if next == to {
			allowed = true
			break
		}
	}
	assert.True(allowed, fmt.Sprintf("sync transition %s -> %s", r.state, to))

	r.state = to
	r.service.tel.ReportDebug(report_sync_transition, append([]any{r.id, to.String()}, params...)...)
	if r.service.observe != nil {
		r.service.observe(r.id, to)
	}
}

func (r *syncRun) fail(reportID string, err error) model.SyncResult {
	r.service.tel.ReportBroken(reportID, err, r.id)
	r.enter(model.StateFailed)
	return model.SyncResult{
		RunID:   r.id,
		Success: false,
		Message: err.Error(),
	}
}

// SyncAll authenticates, lists the courses, reads the contents of each in
// order and aggregates the assignments. It never returns an error, failures
// are reported in the result.
func (s *Service) SyncAll(ctx context.Context, creds Credentials) model.SyncResult {
	run := &syncRun{id: s.rand.RunID(), state: model.StateIdle, service: s}
	ctx, span := tracer.Start(ctx, "SyncAll", trace.WithAttributes(
		attribute.String("run_id", run.id),
	))
	defer span.End()

	startedAt := s.clock.Now()
	result, mode := s.sync(ctx, run, creds)

	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}
	span.SetAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("courses_count", result.CoursesCount),
		attribute.Int("assignments_count", result.AssignmentsCount),
	)

	if s.journal != nil {
		err := s.journal.Record(context.WithoutCancel(ctx), runlog.Run{
			ID:               run.id,
			Mode:             string(mode),
			StartedAt:        startedAt,
			FinishedAt:       s.clock.Now(),
			Success:          result.Success,
			Message:          result.Message,
			CoursesCount:     result.CoursesCount,
			AssignmentsCount: result.AssignmentsCount,
		})
		if err != nil {
			s.tel.ReportWarning(report_service_record, err, run.id)
		}
	}
	return result
}

func (s *Service) sync(ctx context.Context, run *syncRun, creds Credentials) (model.SyncResult, source.Mode) {
	run.enter(model.StateAuthenticating)
	src, err := s.open(creds)
	if err != nil {
		return run.fail(report_sync_authenticate, err), ""
	}
	defer s.close(src)

	err = src.Authenticate(ctx)
	if err != nil {
		return run.fail(report_sync_authenticate, err), src.Mode()
	}

	run.enter(model.StateListingCourses, src.Mode())
	courses, err := src.Courses(ctx)
	if err != nil {
		return run.fail(report_sync_list_courses, err), src.Mode()
	}
	s.tel.ReportCount(report_sync_list_courses, int64(len(courses)))

	withContents := make([]model.CourseWithContents, 0, len(courses))
	for i, course := range courses {
		run.enter(model.StateFetchingCourseDetails, i, course.ID)
		withContents = append(withContents, model.CourseWithContents{
			Course:   course,
			Contents: s.courseContents(ctx, src, run.id, i, course),
		})
	}

	run.enter(model.StateAggregating)
	assignments, err := src.Assignments(ctx, withContents)
	if err != nil {
		s.tel.ReportWarning(report_sync_assignments, err, run.id)
		assignments = nil
	}
	if assignments == nil {
		assignments = []model.Assignment{}
	}

	run.enter(model.StateDone)
	return model.SyncResult{
		RunID:            run.id,
		Success:          true,
		Message:          fmt.Sprintf("Successfully synced %d courses and %d assignments", len(withContents), len(assignments)),
		CoursesCount:     len(withContents),
		AssignmentsCount: len(assignments),
		Data: &model.SyncData{
			Courses:     withContents,
			Assignments: assignments,
			SyncedAt:    s.clock.Now(),
		},
	}, src.Mode()
}

// courseContents never fails, a course that cannot be read has no sections.
func (s *Service) courseContents(ctx context.Context, src source.Source, runID string, index int, course model.Course) []model.Section {
	ctx, span := tracer.Start(ctx, "CourseContents", trace.WithAttributes(
		attribute.String("course_id", course.ID),
		attribute.Int("index", index),
	))
	defer span.End()

	start := s.clock.Now()
	sections, err := src.CourseContents(ctx, course.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read course contents")
		s.tel.ReportWarning(report_sync_course_details, err, runID, course.ID, index)
		return []model.Section{}
	}
	if sections == nil {
		sections = []model.Section{}
	}
	s.tel.ReportDebug(report_sync_course_details, runID, course.ID, len(sections), s.clock.Now().Sub(start).String())
	return sections
}
