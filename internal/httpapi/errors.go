package httpapi

import (
	"errors"
	"net/http"
)

// Error is a failure with a status code and a stable machine code, written as
// the envelope {error, message, details, request_id}.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func Authentication(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "AUTHENTICATION_ERROR", Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Code: "CONFLICT", Message: msg}
}

func Validation(msg string, details map[string]any) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: msg, Details: details}
}

func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
}

type envelope struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	RequestID string         `json:"request_id,omitempty"`
}

// WriteError writes err as an envelope. Errors that are not *Error become 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal()
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	WriteJSON(w, e.Status, envelope{
		Error:     e.Code,
		Message:   e.Message,
		Details:   details,
		RequestID: RequestID(r.Context()),
	})
}

// RateLimited is answered when a client exceeded limit, e.g. "10 per 1 minute".
func RateLimited(limit string) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Too many requests. Please try again later.",
		Details: map[string]any{"limit": limit},
	}
}
