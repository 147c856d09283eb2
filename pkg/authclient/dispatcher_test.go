package authclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayResendsRequestBody(t *testing.T) {
	api := newAPIStub(t, "T2")
	renewer := newGatedRenewer(func(context.Context) (Credential, error) { return "T2", nil })
	renewer.open()
	c := newTestClient(t, api.srv.URL, Options{Renewer: renewer})
	c.Holder().Set("T1")

	in := map[string]string{"full_name": "Ada Lovelace"}
	require.NoError(t, c.Patch(context.Background(), "/api/v1/users/profile", in, nil))

	api.mu.Lock()
	bodies := append([]string(nil), api.bodies...)
	api.mu.Unlock()
	require.Len(t, bodies, 2)
	assert.JSONEq(t, `{"full_name":"Ada Lovelace"}`, bodies[0])
	assert.Equal(t, bodies[0], bodies[1])
}

func TestReplayKeepsRequestID(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(HeaderRequestID))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, Options{Renewer: RenewerFunc(func(context.Context) (Credential, error) { return "T2", nil })})
	c.Holder().Set("T1")
	require.NoError(t, c.Delete(context.Background(), "/api/v1/auth/logout", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	assert.Len(t, ids[0], 27)
	assert.Equal(t, ids[0], ids[1])
}

func TestTransportErrorDoesNotRenew(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	renewer := newGatedRenewer(func(context.Context) (Credential, error) { return "T2", nil })
	hooks := &hookRecorder{}
	c := newTestClient(t, srv.URL, Options{Renewer: renewer, OnInvalidate: hooks.hook})
	c.Holder().Set("T1")

	err := c.Get(context.Background(), "/api/v1/auth/me", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, renewer.calls.Load())
	assert.Zero(t, hooks.calls.Load())
	assert.Equal(t, Credential("T1"), c.Holder().Get())
}

func TestNonAuthFailuresPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"INTERNAL_ERROR","message":"database unavailable","details":{},"request_id":"r-1"}`))
	}))
	t.Cleanup(srv.Close)

	renewer := newGatedRenewer(func(context.Context) (Credential, error) { return "T2", nil })
	c := newTestClient(t, srv.URL, Options{Renewer: renewer})
	c.Holder().Set("T1")

	req, err := c.NewRequest(context.Background(), http.MethodGet, "/api/v1/health", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	err = c.Get(context.Background(), "/api/v1/health", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", apiErr.Code)
	assert.Equal(t, "r-1", apiErr.RequestID)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Zero(t, renewer.calls.Load())
}

func TestDisableRenewalReturnsRejection(t *testing.T) {
	api := newAPIStub(t, "T2")
	c := newTestClient(t, api.srv.URL, Options{DisableRenewal: true})
	c.Holder().Set("T1")

	err := c.Get(context.Background(), "/api/v1/auth/me", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Replayed)
	assert.Equal(t, Credential("T1"), c.Holder().Get())
}

func TestRequestWithoutCredentialOmitsAuthorization(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = r.Header.Values("Authorization")
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, Options{})
	require.NoError(t, c.Get(context.Background(), "/api/v1/health", nil))
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestCustomInvalidCredentialPredicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(419)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	renewer := newGatedRenewer(func(context.Context) (Credential, error) { return "T2", nil })
	renewer.open()
	c := newTestClient(t, srv.URL, Options{
		Renewer:           renewer,
		InvalidCredential: func(resp *http.Response) bool { return resp.StatusCode == 419 },
	})
	c.Holder().Set("T1")

	require.NoError(t, c.Get(context.Background(), "/x", nil))
	assert.Equal(t, int32(1), renewer.calls.Load())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{Config: Config{BaseURL: "localhost:8000"}})
	assert.Error(t, err)
}

func TestRejectionWithoutCredentialIsTerminal(t *testing.T) {
	api := newAPIStub(t, "T2")
	renewer := newGatedRenewer(func(context.Context) (Credential, error) { return "T2", nil })
	renewer.open()
	hooks := &hookRecorder{}
	c := newTestClient(t, api.srv.URL, Options{Renewer: renewer, OnInvalidate: hooks.hook})

	err := c.Post(context.Background(), "/api/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "wrong"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrSessionInvalidated)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Replayed)
	assert.Equal(t, "AUTHENTICATION_ERROR", apiErr.Code)

	assert.Zero(t, renewer.calls.Load())
	assert.Zero(t, hooks.calls.Load())
	assert.Equal(t, []string{""}, api.authHeaders())
}
