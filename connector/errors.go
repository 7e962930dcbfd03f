// ABOUTME: This file classifies fetch errors for retry decisions
// ABOUTME: Distinguishes transient network conditions from permanent failures
package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// HTTPError is a non-2xx response surfaced as an error.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryableError reports whether an error is worth retrying. Cancelled
// contexts and 4xx responses are permanent; timeouts, connection resets,
// and 5xx responses are transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			return errno == syscall.ECONNREFUSED ||
				errno == syscall.ECONNRESET ||
				errno == syscall.ETIMEDOUT
		}
		if opErr.Timeout() {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return isRetryableStatus(httpErr.StatusCode)
	}

	return false
}

func isRetryableStatus(status int) bool {
	switch {
	case status >= 500 && status <= 599:
		return true
	case status == 408: // Request Timeout
		return true
	case status == 429: // Too Many Requests
		return true
	default:
		return false
	}
}
