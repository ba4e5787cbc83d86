package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the base url or credentials are
	// missing, it is never retried.
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	// ErrUnsupported is returned by sources that cannot serve an operation,
	// like upcoming events in browser mode.
	ErrUnsupported = errors.New("operation not supported by this source")
)

func ConfigurationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// AuthenticationError is a terminal failure to obtain a session: bad
// credentials, an unrecognized sso flow or a login form that could not be
// found.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s: %s", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UpstreamAPIError is a failure reported by the LMS for one specific call.
type UpstreamAPIError struct {
	Operation string
	Err       error
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.Operation, e.Err)
}

func (e *UpstreamAPIError) Unwrap() error {
	return e.Err
}

func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

func IsUpstream(err error) bool {
	var target *UpstreamAPIError
	return errors.As(err, &target)
}
