package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Verdenroz/champion-recap/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestTransience(t *testing.T) {
	assert.False(t, errors.IsTransient(errors.NewNotFoundError("match", "NA1_1")))
	assert.False(t, errors.IsTransient(errors.NewValidationError("year", "too small")))
	assert.False(t, errors.IsTransient(errors.NewMalformedError(fmt.Errorf("bad json"))))
	assert.False(t, errors.IsTransient(errors.NewUpstreamError(403, fmt.Errorf("forbidden"))))

	assert.True(t, errors.IsTransient(errors.NewUpstreamError(500, fmt.Errorf("boom"))))
	assert.True(t, errors.IsTransient(errors.NewUpstreamError(503, fmt.Errorf("unavailable"))))
	assert.True(t, errors.IsTransient(errors.NewRateLimitedError(time.Second)))
	assert.True(t, errors.IsTransient(errors.NewTransportError(fmt.Errorf("connection reset"))))

	assert.False(t, errors.IsTransient(stderrors.New("plain")))
	assert.False(t, errors.IsTransient(nil))
}

func TestTransienceSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("failed to fetch match: %w", errors.NewRateLimitedError(2*time.Second))

	assert.True(t, errors.IsTransient(wrapped))
	assert.True(t, errors.IsRateLimited(wrapped))
	assert.Equal(t, 2*time.Second, errors.RetryAfterHint(wrapped))
}

func TestPredicates(t *testing.T) {
	assert.True(t, errors.IsNotFound(errors.NewNotFoundError("player", "p1")))
	assert.False(t, errors.IsNotFound(errors.NewRateLimitedError(0)))

	assert.True(t, errors.IsRateLimited(errors.NewRateLimitedError(0)))
	assert.False(t, errors.IsRateLimited(errors.NewNotFoundError("player", "p1")))

	assert.True(t, errors.IsAggregationNotReady(errors.NewAggregationNotReadyError("p1")))
	assert.False(t, errors.IsAggregationNotReady(errors.NewInternalError(fmt.Errorf("boom"))))
}

func TestRetryAfterHint(t *testing.T) {
	assert.Equal(t, 3*time.Second, errors.RetryAfterHint(errors.NewRateLimitedError(3*time.Second)))
	assert.Equal(t, time.Duration(0), errors.RetryAfterHint(errors.NewRateLimitedError(0)))
	assert.Equal(t, time.Duration(0), errors.RetryAfterHint(stderrors.New("plain")))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errors.StatusFor(errors.NewNotFoundError("match", "NA1_1")))
	assert.Equal(t, http.StatusTooManyRequests, errors.StatusFor(errors.NewRateLimitedError(0)))
	assert.Equal(t, http.StatusBadGateway, errors.StatusFor(errors.NewUpstreamError(502, nil)))
	assert.Equal(t, http.StatusBadRequest, errors.StatusFor(errors.NewValidationError("platform", "unknown")))
	assert.Equal(t, http.StatusAccepted, errors.StatusFor(errors.NewAggregationNotReadyError("p1")))
	assert.Equal(t, http.StatusInternalServerError, errors.StatusFor(stderrors.New("plain")))
}

func TestFrom(t *testing.T) {
	appErr := errors.NewValidationError("tagLine", "empty")
	assert.Same(t, appErr, errors.From(appErr))
	assert.Same(t, appErr, errors.From(fmt.Errorf("request rejected: %w", appErr)))

	internal := errors.From(stderrors.New("plain"))
	assert.Equal(t, errors.ErrCodeInternal, internal.Code)
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
}

func TestErrorString(t *testing.T) {
	err := errors.NewUpstreamError(503, fmt.Errorf("riot API error: 503"))
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "503")

	bare := errors.NewNotFoundError("match", "NA1_1")
	assert.Contains(t, bare.Error(), "NOT_FOUND")
	assert.Contains(t, bare.Error(), "NA1_1")
}
