package model

import "fmt"

// SyncState is the phase a sync run is in.
type SyncState int

const (
	StateIdle SyncState = iota
	StateAuthenticating
	StateListingCourses
	StateFetchingCourseDetails
	StateAggregating
	StateDone
	StateFailed
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateListingCourses:
		return "listing_courses"
	case StateFetchingCourseDetails:
		return "fetching_course_details"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s SyncState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
