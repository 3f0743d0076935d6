package errors

import (
	"context"
	"errors"
	"net/http"
)

// ErrNavigationAborted is the cancellation cause attached to a page context when a full
// navigation discards it.
var ErrNavigationAborted = errors.New("navigation aborted")

// IsAbort reports whether err was caused by a cancellation (page navigation or caller
// shutdown) rather than by a genuine rejection. Deadline expiry is not an abort.
func IsAbort(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNavigationAborted) || errors.Is(err, context.Canceled) {
		return true
	}
	return IsCanceled(err)
}

// MapTransportError maps errors from outbound calls to AppError instances:
// - context cancellation / navigation abort → Canceled
// - context deadline → Timeout
// - anything else → Unavailable
//
// AppErrors pass through untouched.
func MapTransportError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	if IsAbort(err) {
		return &AppError{
			Code:    ErrCodeCanceled,
			Message: "request was canceled",
			Cause:   err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Code:    ErrCodeTimeout,
			Message: "request timed out",
			Cause:   err,
		}
	}

	return &AppError{
		Code:    ErrCodeUnavailable,
		Message: "upstream unavailable",
		Cause:   err,
	}
}

// FromStatus maps a non-2xx API response status to an AppError. It returns nil for 2xx/3xx.
func FromStatus(status int, message string) error {
	if status < http.StatusBadRequest {
		return nil
	}
	if message == "" {
		message = http.StatusText(status)
	}

	code := ErrCodeInternal
	switch {
	case status == http.StatusUnauthorized:
		code = ErrCodeUnauthenticated
	case status == http.StatusForbidden:
		code = ErrCodeForbidden
	case status == http.StatusNotFound:
		code = ErrCodeNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		code = ErrCodeValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = ErrCodeTimeout
	case status == http.StatusTooManyRequests || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable:
		code = ErrCodeUnavailable
	}

	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}
