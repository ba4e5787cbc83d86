package webservice

import (
	"errors"
	"fmt"
	"strings"
)

// TokenError is the `error` payload returned by login/token.php.
type TokenError struct {
	ErrorCode string
	Message   string
	DebugInfo string
}

func (e *TokenError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("token exchange: %s", e.Message)
	}
	return fmt.Sprintf("token exchange: %s (%s)", e.Message, e.ErrorCode)
}

// APIError is the `exception` payload the REST endpoint returns in place of a
// function result.
type APIError struct {
	Function  string
	Exception string
	ErrorCode string
	Message   string
	DebugInfo string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s: %s (%s)", e.Function, e.Exception, e.Message, e.ErrorCode)
}

// StatusError is a non-2xx response from either endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %s", e.Endpoint, e.Status)
}

// error codes moodle uses when web services or the requested service are
// turned off for the site.
var unavailableCodes = []string{
	"enablewsdescription",
	"servicenotavailable",
	"webservicesnotenabled",
	"mobileservicesnotenabled",
	"servicerequireslogin",
}

// IsServiceUnavailable reports whether err means the site does not expose the
// web service at all, as opposed to rejecting the caller.
func IsServiceUnavailable(err error) bool {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		for _, code := range unavailableCodes {
			if strings.EqualFold(tokenErr.ErrorCode, code) {
				return true
			}
		}
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 403 || statusErr.StatusCode == 404
	}
	return false
}

func IsInvalidLogin(err error) bool {
	var tokenErr *TokenError
	return errors.As(err, &tokenErr) && tokenErr.ErrorCode == "invalidlogin"
}

func IsInvalidToken(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode == "invalidtoken" || apiErr.ErrorCode == "accessexception"
}
