package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var ErrJobNotFound = errors.New("job not found")

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// TransportError wraps a failure to reach the backend or read its response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is transient: transport failures, timeouts,
// 429 and 5xx responses. Client errors (4xx) are permanent.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status == http.StatusTooManyRequests || he.Status >= 500
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return isTimeout(err)
}

// retryableFor narrows IsRetryable by method. A POST may have been accepted
// before a gateway error or timeout, so it is only repeated on 429.
func retryableFor(method string, err error) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return IsRetryable(err)
	}
	return StatusCode(err) == http.StatusTooManyRequests
}

// StatusCode returns the HTTP status of err, or 0 if err is not an HTTPError.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// IsNotFound reports a 404 response or ErrJobNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) || StatusCode(err) == http.StatusNotFound
}
