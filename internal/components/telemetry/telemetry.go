package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics so that tests can assert on what a
// component reported instead of scraping log output.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that has failed in a way that should be looked at.
	//
	// The `id` names the **component** that broke in the form `<struct or intf>.<method>`,
	// for example `client.get-course-contents`, not the specific line that failed. Extra
	// detail (the wrapped error, the course id, the attempt number) goes into params.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// Look at the `report_...` string constants in each package for examples.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that degraded but did not fail, like a course
	// whose page could not be parsed and was replaced by an empty content list.
	ReportWarning(id string, params ...any)

	// ReportDebug reports some debug information that will be ignored in production
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of a specific event at the current time, these
	// counts are points of data over time and should not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id it reports with a namespace, like a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
