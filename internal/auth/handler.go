package auth

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/httpapi"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/user/entity"
)

const (
	refreshCookie = "refresh_token"
	cookiePath    = "/api/v1/auth"
)

type Handler struct {
	tokens *TokenService
	users  *user.UserService
	logger *zap.SugaredLogger
}

func NewHandler(tokens *TokenService, users *user.UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{tokens: tokens, users: users, logger: logger}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse describes the access token. The refresh token only travels
// in the httpOnly cookie.
type SessionResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AuthResponse struct {
	User    user.UserResponse `json:"user"`
	Session SessionResponse   `json:"session"`
	Message string            `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	u, err := h.users.Signup(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		h.fail(w, r, "signup failed", err)
		return
	}
	h.logger.Infow("user signed up", "user_id", u.ID, "request_id", httpapi.RequestID(r.Context()))
	h.startSession(w, r, u, http.StatusCreated, "Account created successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	u, err := h.users.AuthenticatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login failed", err)
		return
	}
	h.startSession(w, r, u, http.StatusOK, "Login successful")
}

// Refresh redeems the refresh token from the cookie, falling back to the body,
// and answers with a new access token and a rotated cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(refreshCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req RefreshRequest
		if err := httpapi.DecodeJSON(r, &req); err != nil {
			httpapi.WriteError(w, r, err)
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		httpapi.WriteError(w, r, httpapi.Authentication("No refresh token provided"))
		return
	}
	userID, err := h.tokens.RedeemRefresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, "refresh failed", err)
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			err = ErrInvalidRefresh
		}
		h.fail(w, r, "refresh failed", err)
		return
	}
	if u.Status != "active" {
		h.fail(w, r, "refresh failed", ErrInvalidRefresh)
		return
	}
	h.logger.Debugw("token refreshed", "user_id", u.ID, "request_id", httpapi.RequestID(r.Context()))
	h.startSession(w, r, u, http.StatusOK, "Token refreshed successfully")
}

// Logout ends every session of the user: refresh sessions are deleted and
// outstanding access tokens stop verifying.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, _ := httpapi.Subject(r.Context())
	if err := h.tokens.RevokeUser(r.Context(), id); err != nil {
		h.fail(w, r, "logout failed", err)
		return
	}
	if err := h.users.RevokeAccess(r.Context(), id); err != nil {
		h.fail(w, r, "logout failed", err)
		return
	}
	h.clearCookie(w)
	h.logger.Infow("user logged out", "user_id", id, "request_id", httpapi.RequestID(r.Context()))
	httpapi.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully", Success: true})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := httpapi.Subject(r.Context())
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "load user failed", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user.ToResponse(u))
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, h.tokens.JWKS())
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u *entity.User, status int, msg string) {
	access, exp, err := h.tokens.IssueAccess(&entity.AuthView{ID: u.ID, Email: u.Email, Version: u.Version})
	if err != nil {
		h.fail(w, r, "issue access token failed", err)
		return
	}
	refresh, err := h.tokens.IssueRefresh(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, "issue refresh token failed", err)
		return
	}
	cfg := h.tokens.Config()
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refresh,
		Path:     cookiePath,
		MaxAge:   int(cfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httpapi.WriteJSON(w, status, AuthResponse{
		User: user.ToResponse(u),
		Session: SessionResponse{
			AccessToken: access,
			TokenType:   "Bearer",
			ExpiresIn:   int(cfg.AccessTTL.Seconds()),
			ExpiresAt:   exp.UTC(),
		},
		Message: msg,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.tokens.Config().CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	rid := httpapi.RequestID(r.Context())
	switch {
	case errors.Is(err, ErrInvalidRefresh):
		h.logger.Debugw(msg, "err", err, "request_id", rid)
		h.clearCookie(w)
		httpapi.WriteError(w, r, httpapi.Authentication("Invalid or expired refresh token"))
		return
	case errors.Is(err, ErrInvalidToken):
		h.logger.Debugw(msg, "err", err, "request_id", rid)
		httpapi.WriteError(w, r, httpapi.Authentication("Invalid or expired token"))
		return
	}
	mapped := user.MapError(err)
	var apiErr *httpapi.Error
	if errors.As(mapped, &apiErr) {
		h.logger.Debugw(msg, "err", err, "request_id", rid)
	} else {
		h.logger.Warnw(msg, "err", err, "request_id", rid)
	}
	httpapi.WriteError(w, r, mapped)
}
