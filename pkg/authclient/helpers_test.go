package authclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// apiStub accepts a single bearer credential and answers 401 to anything else.
type apiStub struct {
	srv *httptest.Server

	mu       sync.Mutex
	accepted Credential
	auths    []string
	bodies   []string

	rejected atomic.Int32
	served   atomic.Int32
}

func newAPIStub(t *testing.T, accepted Credential) *apiStub {
	t.Helper()
	s := &apiStub{accepted: accepted}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		auth := r.Header.Get("Authorization")
		s.mu.Lock()
		s.auths = append(s.auths, auth)
		s.bodies = append(s.bodies, string(body))
		ok := auth == "Bearer "+string(s.accepted)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			s.rejected.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AUTHENTICATION_ERROR","message":"Invalid or expired token","details":{},"request_id":"` + r.Header.Get(HeaderRequestID) + `"}`))
			return
		}
		s.served.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *apiStub) authHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auths...)
}

// gatedRenewer blocks every Renew until release is closed.
type gatedRenewer struct {
	calls   atomic.Int32
	release chan struct{}
	result  func(ctx context.Context) (Credential, error)
}

func newGatedRenewer(result func(ctx context.Context) (Credential, error)) *gatedRenewer {
	return &gatedRenewer{release: make(chan struct{}), result: result}
}

func (g *gatedRenewer) Renew(ctx context.Context) (Credential, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.result(ctx)
}

func (g *gatedRenewer) open() { close(g.release) }

type hookRecorder struct {
	calls  atomic.Int32
	mu     sync.Mutex
	causes []error
}

func (h *hookRecorder) hook(_ context.Context, cause error) {
	h.calls.Add(1)
	h.mu.Lock()
	h.causes = append(h.causes, cause)
	h.mu.Unlock()
}

func newTestClient(t *testing.T, baseURL string, opts Options) *Client {
	t.Helper()
	opts.Config.BaseURL = baseURL
	if opts.Config.RequestTimeout == 0 {
		opts.Config.RequestTimeout = 5 * time.Second
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
