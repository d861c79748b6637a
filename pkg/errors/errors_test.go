package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorWrapsSentinel verifies that AppError participates in
// errors.Is / errors.As chains.
func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrDuplicateRequest, http.StatusConflict, "idempotency key already maps to job %s", "job-1")

	if !errors.Is(err, ErrDuplicateRequest) {
		t.Error("errors.Is lost the sentinel")
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As failed")
	}
	if appErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", appErr.StatusCode, http.StatusConflict)
	}

	want := "idempotency key already used: idempotency key already maps to job job-1"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

// TestAppErrorSurvivesWrapping verifies that fmt.Errorf %w layers on top
// of an AppError still map to its status code.
func TestAppErrorSurvivesWrapping(t *testing.T) {
	inner := New(ErrInvalidInput, http.StatusBadRequest, "priority out of range")
	wrapped := fmt.Errorf("handling upload: %w", inner)

	if got := HTTPStatusCode(wrapped); got != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", got, http.StatusBadRequest)
	}
	if !errors.Is(wrapped, ErrInvalidInput) {
		t.Error("sentinel lost through wrapping")
	}
}

// TestHTTPStatusCodeSentinels pins the sentinel-to-status mapping the API
// responses depend on.
func TestHTTPStatusCodeSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrJobNotFound, http.StatusNotFound},
		{ErrDuplicateRequest, http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrQueueUnavailable, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrInternal, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// TestHTTPStatusCodePrefersAppError verifies that an explicit AppError
// status beats the sentinel's default mapping.
func TestHTTPStatusCodePrefersAppError(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusUnprocessableEntity, "semantically wrong")
	if got := HTTPStatusCode(err); got != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", got, http.StatusUnprocessableEntity)
	}
}

// TestHTTPStatusCodeWrappedSentinel verifies that plain wrapped sentinels
// (no AppError) still map.
func TestHTTPStatusCodeWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("enqueue: %w", ErrQueueUnavailable)
	if got := HTTPStatusCode(err); got != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", got, http.StatusServiceUnavailable)
	}
}
