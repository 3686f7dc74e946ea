package api

import (
	"errors"
	"fmt"
	"net/http"

	"messaging-client/internal/conversation"
)

type HTTPError struct {
	StatusCode int
	Message    string
	// Code is the engine error code, when there is one.
	Code     string
	ErrorLog error
}

func (e *HTTPError) Error() string {
	return e.Message
}

type ApiError struct {
	Error string `json:"message"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[conversation.ErrorCode]int{
	conversation.ErrorCodeValidation:      http.StatusBadRequest,
	conversation.ErrorCodeBadRequest:      http.StatusBadRequest,
	conversation.ErrorCodeAuthentication:  http.StatusUnauthorized,
	conversation.ErrorCodeNotFound:        http.StatusNotFound,
	conversation.ErrorCodeConflict:        http.StatusConflict,
	conversation.ErrorCodeSessionEnded:    http.StatusGone,
	conversation.ErrorCodeSessionRequired: http.StatusExpectationFailed,
	conversation.ErrorCodeRateLimited:     http.StatusTooManyRequests,
	conversation.ErrorCodeServerError:     http.StatusBadGateway,
	conversation.ErrorCodeTransport:       http.StatusBadGateway,
	conversation.ErrorCodeCanceled:        http.StatusRequestTimeout,
	conversation.ErrorCodeInternal:        http.StatusInternalServerError,
}

// EngineError maps an engine failure onto the HTTP error returned to the
// presentation client.
func EngineError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, conversation.ErrNotOpen) {
		return &HTTPError{
			StatusCode: http.StatusConflict,
			Message:    "Conversation is not open.",
			ErrorLog:   err,
		}
	}

	var engErr *conversation.Error
	if !errors.As(err, &engErr) {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("conversation engine: %w", err),
		}
	}

	status, ok := statusByCode[engErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	errorLog := error(engErr)
	if engErr.Err != nil {
		errorLog = fmt.Errorf("%s: %w", engErr.Message, engErr.Err)
	}
	return &HTTPError{
		StatusCode: status,
		Message:    engErr.Message,
		Code:       string(engErr.Code),
		ErrorLog:   errorLog,
	}
}
