package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const HeaderRequestID = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return Validation("Invalid request body", map[string]any{"reason": err.Error()})
	}
	return nil
}

const subjectKey ctxKey = iota + 1

// WithSubject stores the authenticated user id.
func WithSubject(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, subjectKey, id)
}

func Subject(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(subjectKey).(int64)
	return id, ok
}
