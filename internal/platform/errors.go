package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrParentUnavailable is returned when an inbox reply no longer has a
// comment it can be traced back to.
var ErrParentUnavailable = errors.New("parent comment unavailable")

// retryableStatus lists platform responses that indicate a transient fault
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	522:                            true, // Cloudflare connection timed out
}

// APIError is a failed platform call
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("reddit API %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Retryable reports whether the call may succeed if repeated later
func (e *APIError) Retryable() bool {
	return retryableStatus[e.StatusCode]
}

// IsRetryable reports whether err wraps a transient platform fault
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// IsAPIError reports whether err wraps any platform error response
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
