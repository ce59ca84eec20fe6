package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Message    string

	// rate limit headers; Remaining is -1 when the header was absent
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("GitHub API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("GitHub API error (status %d): %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the response signals an exhausted rate limit,
// primary (429 or 403 with zero remaining) or secondary (403 with Retry-After).
func (e *APIError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode == http.StatusForbidden && (e.Remaining == 0 || e.RetryAfter > 0)
}

// Unauthorized reports a credential or scope problem that retrying won't fix.
func (e *APIError) Unauthorized() bool {
	return (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden) && !e.RateLimited()
}

// ServerError reports a 5xx response.
func (e *APIError) ServerError() bool {
	return e.StatusCode >= 500
}

// ResetTime returns when the rate limit lifts, or zero if unknown.
func (e *APIError) ResetTime() time.Time {
	if !e.ResetAt.IsZero() {
		return e.ResetAt
	}
	if e.RetryAfter > 0 {
		return time.Now().Add(e.RetryAfter)
	}
	return time.Time{}
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Remaining:  -1,
		ResetAt:    parseUnix(resp.Header.Get("X-RateLimit-Reset")),
	}
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiErr.Remaining = n
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
		apiErr.Message = msg.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// AsAPIError unwraps err to an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
