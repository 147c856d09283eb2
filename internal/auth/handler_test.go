package auth

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/user"
)

var userCols = []string{"id", "email", "full_name", "avatar_url", "password_hash", "status", "version", "email_confirmed_at", "created_at", "updated_at"}

type testEnv struct {
	mux  *http.ServeMux
	mock sqlmock.Sqlmock
	hash string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	sdb := sqlx.NewDb(db, "postgres")
	hasher := user.BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := hasher.Hash("Secret#123")
	require.NoError(t, err)

	tokens, err := NewTokenService(sdb, testConfig())
	require.NoError(t, err)
	users := user.NewUserService(sdb, nil, hasher)
	logger := zap.NewNop().Sugar()
	h := NewHandler(tokens, users, logger)
	bearer := RequireBearer(tokens, users, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.Handle("GET /api/v1/auth/me", bearer(http.HandlerFunc(h.Me)))
	mux.Handle("POST /api/v1/auth/logout", bearer(http.HandlerFunc(h.Logout)))
	return &testEnv{mux: mux, mock: mock, hash: hash}
}

func (e *testEnv) userRow(version int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).AddRow(int64(42), "ada@example.com", "Ada", nil, e.hash, "active", version, nil, now, now)
}

func (e *testEnv) expectSaveRefresh() {
	e.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO auth_refresh_sessions")).
		WithArgs(sqlmock.AnyArg(), int64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
}

func (e *testEnv) expectAuthView(version int64) {
	e.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, version FROM users WHERE id=$1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "version"}).AddRow(int64(42), "ada@example.com", version))
}

func (e *testEnv) do(method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func refreshCookieOf(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookie {
			return c
		}
	}
	t.Fatal("no refresh cookie set")
	return nil
}

type hashArg struct{ want string }

func (a hashArg) Match(v driver.Value) bool { return v == a.want }

func TestLoginRefreshMeLogout(t *testing.T) {
	e := newTestEnv(t)

	e.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1")).WithArgs("ada@example.com").WillReturnRows(e.userRow(1))
	e.expectSaveRefresh()
	w := e.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ada@example.com", Password: "Secret#123"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "Bearer", login.Session.TokenType)
	assert.Equal(t, 900, login.Session.ExpiresIn)
	assert.Equal(t, "42", login.User.ID)
	assert.NotContains(t, w.Body.String(), "refresh_token")
	cookie := refreshCookieOf(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/api/v1/auth", cookie.Path)

	e.mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM auth_refresh_sessions WHERE token_hash = $1")).
		WithArgs(hashArg{hashToken(cookie.Value)}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at"}).AddRow(int64(1), int64(42), time.Now().Add(time.Hour)))
	e.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=$1")).WithArgs(int64(42)).WillReturnRows(e.userRow(1))
	e.expectSaveRefresh()
	w = e.do(http.MethodPost, "/api/v1/auth/refresh", map[string]any{}, func(r *http.Request) { r.AddCookie(cookie) })
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.NotEqual(t, cookie.Value, refreshCookieOf(t, w).Value)

	bearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+refreshed.Session.AccessToken) }
	e.expectAuthView(1)
	e.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=$1")).WithArgs(int64(42)).WillReturnRows(e.userRow(1))
	w = e.do(http.MethodGet, "/api/v1/auth/me", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"email":"ada@example.com"`)

	e.expectAuthView(1)
	e.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_refresh_sessions WHERE user_id = $1")).WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET version = version + 1")).WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	w = e.do(http.MethodPost, "/api/v1/auth/logout", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, -1, refreshCookieOf(t, w).MaxAge)

	// The token minted before logout carries version 1.
	e.expectAuthView(2)
	w = e.do(http.MethodGet, "/api/v1/auth/me", nil, bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshWithoutTokenIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/v1/auth/refresh", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "No refresh token provided")
}

func TestRefreshAcceptsBodyToken(t *testing.T) {
	e := newTestEnv(t)
	e.mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM auth_refresh_sessions WHERE token_hash = $1")).
		WithArgs(hashArg{hashToken("body-token")}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at"}))

	w := e.do(http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: "body-token"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "AUTHENTICATION_ERROR", env["error"])
	assert.Equal(t, "Invalid or expired refresh token", env["message"])
}

func TestLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1")).WithArgs("ada@example.com").WillReturnRows(e.userRow(1))

	w := e.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ada@example.com", Password: "Nope#1234"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
}

func TestMeRequiresBearer(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
