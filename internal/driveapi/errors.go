// Package driveapi is the request executor for the Google Drive v2 REST API.
// Every call is a single authenticated request/response cycle: no retries,
// JSON in and out, and any status other than 200 is an error.
package driveapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, driveapi.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("driveapi: bad request")
	ErrUnauthorized = errors.New("driveapi: unauthorized")
	ErrForbidden    = errors.New("driveapi: forbidden")
	ErrNotFound     = errors.New("driveapi: not found")
	ErrConflict     = errors.New("driveapi: conflict")
	ErrPrecondition = errors.New("driveapi: precondition failed")
	ErrRange        = errors.New("driveapi: range not satisfiable")
	ErrThrottled    = errors.New("driveapi: throttled")
	ErrServerError  = errors.New("driveapi: server error")
	ErrUnexpected   = errors.New("driveapi: unexpected status")
	ErrTransport    = errors.New("driveapi: transport failure")
)

// APIError is a non-success response to a well-formed request. A 401
// unwraps to ErrUnauthorized; the executor has already dropped the cached
// credential by the time the caller sees it.
type APIError struct {
	Method     string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("driveapi: %s: HTTP %d", e.Method, e.StatusCode)
	}

	return fmt.Sprintf("driveapi: %s: HTTP %d: %s", e.Method, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError is a connection-level failure: DNS, TLS, a reset, or a
// response body whose read broke off. A body that arrived whole but is not
// valid JSON is ErrDecode instead.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("driveapi: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// IsAuth reports whether err is a rejected credential.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// StatusCode extracts the HTTP status from an APIError chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPrecondition
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRange
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpected
	}
}
