package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/httpapi"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/user"
)

// RequireBearer rejects requests without a valid access token and stores the
// subject in the request context. Tokens minted before the user's last
// logout carry an old version and are rejected as well.
func RequireBearer(tokens *TokenService, users *user.UserService, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpapi.WriteError(w, r, httpapi.Authentication("Missing bearer token"))
				return
			}
			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				logger.Debugw("access token rejected", "err", err, "request_id", httpapi.RequestID(r.Context()))
				httpapi.WriteError(w, r, httpapi.Authentication("Invalid or expired token"))
				return
			}
			id, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				httpapi.WriteError(w, r, httpapi.Authentication("Invalid or expired token"))
				return
			}
			view, err := users.GetAuthView(r.Context(), id)
			if err != nil {
				if errors.Is(err, user.ErrUserNotFound) {
					httpapi.WriteError(w, r, httpapi.Authentication("Invalid or expired token"))
					return
				}
				httpapi.WriteError(w, r, err)
				return
			}
			if view.Version != claims.Version {
				httpapi.WriteError(w, r, httpapi.Authentication("Invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(httpapi.WithSubject(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < len("bearer ") || !strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[len("bearer "):])
	return token, token != ""
}
