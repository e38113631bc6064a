package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeCacheConflict    = "CACHE_WRITE_CONFLICT"
	ErrCodeAggregationInput = "AGGREGATION_INPUT_MISSING"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// AppError carries the pipeline's error taxonomy with an HTTP status mapping
// for the handlers.
type AppError struct {
	Code    string
	Message string
	Status  int // HTTP status code

	// Transient marks errors that the queue should retry; permanent errors
	// are counted against the item and excluded from aggregation.
	Transient bool

	// RetryAfter is the server-supplied backoff hint for rate limits, zero
	// when the upstream did not send one.
	RetryAfter time.Duration

	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a permanent NOT_FOUND error.
func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Status:  http.StatusNotFound,
	}
}

// NewRateLimitedError creates a transient RATE_LIMITED error carrying the
// upstream's Retry-After hint when present.
func NewRateLimitedError(retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    "upstream rate limit exceeded",
		Status:     http.StatusTooManyRequests,
		Transient:  true,
		RetryAfter: retryAfter,
	}
}

// NewUpstreamError classifies an upstream response by status code: 5xx is
// transient, everything else permanent.
func NewUpstreamError(statusCode int, err error) *AppError {
	return &AppError{
		Code:      ErrCodeUpstream,
		Message:   fmt.Sprintf("upstream returned status %d", statusCode),
		Status:    http.StatusBadGateway,
		Transient: statusCode >= 500,
		Err:       err,
	}
}

// NewTransportError wraps a network-level failure (timeout, connection
// reset), always retriable.
func NewTransportError(err error) *AppError {
	return &AppError{
		Code:      ErrCodeUpstream,
		Message:   "upstream request failed",
		Status:    http.StatusBadGateway,
		Transient: true,
		Err:       err,
	}
}

// NewMalformedError marks an unparseable upstream payload, permanent for that
// item.
func NewMalformedError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeUpstream,
		Message: "upstream payload malformed",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// NewCacheConflictError reports a concurrent write to an already-cached
// match. Callers treat it as success; the type exists for observability.
func NewCacheConflictError(matchID string) *AppError {
	return &AppError{
		Code:    ErrCodeCacheConflict,
		Message: fmt.Sprintf("match %s already cached", matchID),
		Status:  http.StatusConflict,
	}
}

// NewAggregationNotReadyError signals that no cached input exists yet for the
// requested snapshot. Not a failure; the snapshot is simply absent.
func NewAggregationNotReadyError(playerID string) *AppError {
	return &AppError{
		Code:    ErrCodeAggregationInput,
		Message: fmt.Sprintf("no aggregated input for player %s", playerID),
		Status:  http.StatusAccepted,
	}
}

// NewValidationError creates a VALIDATION_ERROR for bad request input.
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Status:  http.StatusBadRequest,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// IsTransient reports whether err should be retried via the queue.
func IsTransient(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Transient
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

// IsRateLimited reports whether err is a RATE_LIMITED error.
func IsRateLimited(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeRateLimited
}

// IsAggregationNotReady reports whether err signals missing aggregation input.
func IsAggregationNotReady(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeAggregationInput
}

// RetryAfterHint extracts the upstream backoff hint, zero when absent.
func RetryAfterHint(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// StatusFor maps err to an HTTP status for the handlers.
func StatusFor(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// From extracts the AppError behind err, wrapping anything else as internal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}
