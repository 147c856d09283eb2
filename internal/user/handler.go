package user

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/httpapi"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/user/entity"
)

// Handler exposes the profile endpoints. Routes are mounted behind bearer auth.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FullName         *string    `json:"full_name"`
	AvatarURL        *string    `json:"avatar_url"`
	CreatedAt        time.Time  `json:"created_at"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

type ProfileResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  *string    `json:"full_name"`
	AvatarURL *string    `json:"avatar_url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func ToResponse(u *entity.User) UserResponse {
	return UserResponse{
		ID:               strconv.FormatInt(u.ID, 10),
		Email:            u.Email,
		FullName:         u.FullName,
		AvatarURL:        u.AvatarURL,
		CreatedAt:        u.CreatedAt,
		EmailConfirmedAt: u.EmailConfirmedAt,
	}
}

func ToProfile(u *entity.User) ProfileResponse {
	updated := u.UpdatedAt
	return ProfileResponse{
		ID:        strconv.FormatInt(u.ID, 10),
		Email:     u.Email,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
		UpdatedAt: &updated,
	}
}

// UpdateProfileRequest only changes the fields that are present.
type UpdateProfileRequest struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, _ := httpapi.Subject(r.Context())
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, ToProfile(u))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	id, _ := httpapi.Subject(r.Context())
	u, err := h.svc.UpdateProfile(r.Context(), id, entity.ProfilePatch{FullName: req.FullName, AvatarURL: req.AvatarURL})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Infow("profile updated", "user_id", id, "request_id", httpapi.RequestID(r.Context()))
	httpapi.WriteJSON(w, http.StatusOK, ToProfile(u))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpapi.WriteError(w, r, MapError(err))
	if _, ok := err.(*ValidationError); !ok && !errors.Is(err, ErrUserNotFound) {
		h.logger.Warnw("user request failed", "err", err, "request_id", httpapi.RequestID(r.Context()))
	}
}

// MapError turns service errors into API errors.
func MapError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return httpapi.Validation("Validation failed", map[string]any{"field": verr.Field, "reason": verr.Reason})
	case errors.Is(err, ErrBadCredentials):
		return httpapi.Authentication("Invalid email or password")
	case errors.Is(err, ErrDisabled):
		return httpapi.Authentication("Account disabled")
	case errors.Is(err, ErrUserNotFound):
		return httpapi.NotFound("User not found")
	case errors.Is(err, ErrEmailTaken):
		return httpapi.Conflict("Email already registered")
	default:
		return err
	}
}
