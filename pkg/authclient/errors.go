package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrUnauthorized matches an APIError carrying HTTP 401.
	ErrUnauthorized = errors.New("authclient: credential rejected")
	// ErrRenewalFailed matches every RenewalError.
	ErrRenewalFailed = errors.New("authclient: credential renewal failed")
	// ErrSessionInvalidated is returned when the session was cleared and the
	// user has to authenticate again.
	ErrSessionInvalidated = errors.New("authclient: session invalidated")
	// ErrNoCredential is returned by calls that need a session when none is held.
	ErrNoCredential = errors.New("authclient: no credential")
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx backend answer decoded from the error envelope
// {error, message, details, request_id}.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"error"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	// Replayed is set when the request already went through one renewal.
	Replayed bool `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// RenewalError wraps the cause of a failed renewal. A failed renewal always
// invalidates the session, so it matches ErrSessionInvalidated as well.
type RenewalError struct {
	Cause error
}

func (e *RenewalError) Error() string {
	return fmt.Sprintf("%v: %v", ErrRenewalFailed, e.Cause)
}

func (e *RenewalError) Unwrap() error { return e.Cause }

func (e *RenewalError) Is(target error) bool {
	return target == ErrRenewalFailed || target == ErrSessionInvalidated
}

// readAPIError consumes and closes resp.Body.
func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	if json.Unmarshal(body, apiErr) != nil {
		apiErr.Message = string(body)
	}
	if apiErr.RequestID == "" {
		apiErr.RequestID = resp.Header.Get(HeaderRequestID)
	}
	return apiErr
}
