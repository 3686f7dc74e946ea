package conversation

import (
	"context"
	"errors"
	"net/http"

	"messaging-client/internal/eventsource"
	"messaging-client/internal/transport"
)

type ErrorCode string

const (
	ErrorCodeAuthentication  ErrorCode = "authentication"
	ErrorCodeSessionRequired ErrorCode = "session_required"
	ErrorCodeValidation      ErrorCode = "validation"
	ErrorCodeTransport       ErrorCode = "transport"
	ErrorCodeRateLimited     ErrorCode = "rate_limited"
	ErrorCodeServerError     ErrorCode = "server_error"
	ErrorCodeBadRequest      ErrorCode = "bad_request"
	ErrorCodeNotFound        ErrorCode = "not_found"
	ErrorCodeSessionEnded    ErrorCode = "session_ended"
	ErrorCodeConflict        ErrorCode = "conflict"
	ErrorCodeCanceled        ErrorCode = "canceled"
	ErrorCodeInternal        ErrorCode = "internal"
)

var ErrNotOpen = errors.New("conversation is not open")

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// classify maps a failure to its error code. fatal reports whether the
// session must be torn down.
func classify(err error) (code ErrorCode, fatal bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeCanceled, false
	}

	var authErr *eventsource.AuthError
	if errors.As(err, &authErr) || errors.Is(err, eventsource.ErrAttemptsExhausted) {
		return ErrorCodeAuthentication, true
	}

	var herr *transport.HTTPError
	if !errors.As(err, &herr) {
		return ErrorCodeTransport, false
	}
	switch herr.StatusCode {
	case http.StatusUnauthorized:
		return ErrorCodeAuthentication, true
	case http.StatusExpectationFailed:
		return ErrorCodeSessionRequired, false
	case http.StatusBadRequest:
		return ErrorCodeBadRequest, false
	case http.StatusNotFound:
		return ErrorCodeNotFound, false
	case http.StatusTooManyRequests:
		return ErrorCodeRateLimited, false
	case http.StatusInternalServerError:
		return ErrorCodeServerError, false
	default:
		return ErrorCodeInternal, true
	}
}
