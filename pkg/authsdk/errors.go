package authsdk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNetworkUnavailable wraps transport failures where no response was received.
var ErrNetworkUnavailable = errors.New("authsdk: network unavailable")

// ErrNoToken is returned by Session calls that need a token while anonymous.
var ErrNoToken = errors.New("authsdk: no authentication token")

// ============================================================================
// StatusError - non-2xx responses
// ============================================================================

// StatusError is returned when the service answers with an unexpected status.
type StatusError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Message is the server supplied message, empty when the body carried none.
	Message string

	// RetryAfter is parsed from the Retry-After header, zero when absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authsdk: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("authsdk: status %d: %s", e.StatusCode, e.Message)
}

// ============================================================================
// Classification
// ============================================================================

// Category is the user-facing class of a failed request.
type Category string

const (
	CategoryInvalidCredentials Category = "invalid_credentials"
	CategoryTooManyRequests    Category = "too_many_requests"
	CategoryServerError        Category = "server_error"
	CategoryNetworkUnavailable Category = "network_unavailable"
	CategoryUnknown            Category = "unknown"
)

// Generic messages used when the server did not supply one.
const (
	MessageInvalidCredentials = "Invalid username or password."
	MessageTooManyRequests    = "Too many requests. Please try again later."
	MessageServerError        = "Server error. Please try again later."
	MessageNetworkUnavailable = "Unable to connect to server. Please check your connection."
	MessageUnknown            = "An unknown error occurred!"
)

// APIError is the classified form of an SDK error, ready to show to a user.
type APIError struct {
	Category   Category
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string { return e.Message }

// Unwrap returns the classified error.
func (e *APIError) Unwrap() error { return e.Err }

// Classify maps an error returned by this package onto a Category with a
// message for display. A server supplied message wins over the generic one.
// Classify returns nil for a nil error.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr, err)
	}

	if errors.Is(err, ErrNetworkUnavailable) {
		return &APIError{Category: CategoryNetworkUnavailable, Message: MessageNetworkUnavailable, Err: err}
	}

	return &APIError{Category: CategoryUnknown, Message: MessageUnknown, Err: err}
}

func classifyStatus(se *StatusError, err error) *APIError {
	out := &APIError{
		StatusCode: se.StatusCode,
		RetryAfter: se.RetryAfter,
		Err:        err,
	}

	var fallback string
	switch {
	case se.StatusCode == http.StatusUnauthorized:
		out.Category, fallback = CategoryInvalidCredentials, MessageInvalidCredentials
	case se.StatusCode == http.StatusTooManyRequests:
		out.Category, fallback = CategoryTooManyRequests, MessageTooManyRequests
	case se.StatusCode >= 500 && se.StatusCode <= 599:
		out.Category, fallback = CategoryServerError, MessageServerError
	default:
		out.Category = CategoryUnknown
		fallback = fmt.Sprintf("Server returned code %d. Please try again.", se.StatusCode)
	}

	out.Message = se.Message
	if out.Message == "" {
		out.Message = fallback
	}
	return out
}

// transportError wraps an error from http.Client.Do. Context errors are kept
// as they are so callers can tell cancellation apart from an outage.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("authsdk: request aborted: %w", ctxErr)
	}
	return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
}

// parseRetryAfter reads a Retry-After header given in delta-seconds or as an
// HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		if secs > math.MaxInt64/int64(time.Second) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
