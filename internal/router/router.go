package router

import (
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/httpapi"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-health-go/pkg/utilities"
)

const (
	serviceName    = "vitals-api"
	serviceVersion = "1.0.0"
)

// Config controls the cross-cutting HTTP behaviour.
type Config struct {
	CORSOrigins []string
	RateLimit   bool
}

// ConfigFromEnv reads CORS_ORIGINS (comma separated) and RATE_LIMIT_ENABLED.
func ConfigFromEnv() Config {
	cfg := Config{
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		RateLimit:   true,
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = cfg.CORSOrigins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if b, err := strconv.ParseBool(os.Getenv("RATE_LIMIT_ENABLED")); err == nil {
		cfg.RateLimit = b
	}
	return cfg
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDMiddleware keeps a caller supplied X-Request-ID or assigns a KSUID,
// echoes it on the response and stores it in the request context.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(httpapi.HeaderRequestID)
			if id == "" || len(id) > 64 {
				id = utilities.NewKSUID()
			}
			w.Header().Set(httpapi.HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(httpapi.WithRequestID(r.Context(), id)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
				"request_id", httpapi.RequestID(r.Context()),
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// API responses are never rendered as documents.
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Cache-Control", "no-store")
			// HSTS only over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware lets the listed browser origins call the API with credentials
// and answers their preflight requests.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			allowed := slices.Contains(origins, origin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !allowed {
				if preflight {
					http.Error(w, "Disallowed CORS origin", http.StatusBadRequest)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if preflight {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, Accept, Origin, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Length")
			next.ServeHTTP(w, r)
		})
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, tokens *auth.TokenService, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Service:   serviceName,
			Version:   serviceVersion,
		})
	})

	users := user.NewUserService(db, nil, nil)
	authHandler := auth.NewHandler(tokens, users, logger)
	userHandler := user.NewHandler(users, logger)
	bearer := auth.RequireBearer(tokens, users, logger)

	// per client ip, one bucket set per route
	limit := func(perMinute int, h http.Handler) http.Handler {
		if !cfg.RateLimit {
			return h
		}
		return ratelimit.PerMinute(perMinute).Middleware(logger)(h)
	}

	mux.Handle("POST /api/v1/auth/signup", limit(5, http.HandlerFunc(authHandler.Signup)))
	mux.Handle("POST /api/v1/auth/login", limit(10, http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/auth/refresh", limit(30, http.HandlerFunc(authHandler.Refresh)))
	mux.HandleFunc("GET /api/v1/auth/jwks.json", authHandler.JWKS)
	mux.Handle("POST /api/v1/auth/logout", limit(30, bearer(http.HandlerFunc(authHandler.Logout))))
	mux.Handle("GET /api/v1/auth/me", limit(30, bearer(http.HandlerFunc(authHandler.Me))))
	mux.Handle("GET /api/v1/users/profile", bearer(http.HandlerFunc(userHandler.Profile)))
	mux.Handle("PATCH /api/v1/users/profile", bearer(http.HandlerFunc(userHandler.UpdateProfile)))

	// request id first so every later layer can log it
	return RequestIDMiddleware()(LoggingMiddleware(logger)(CORSMiddleware(cfg.CORSOrigins)(SecurityHeadersMiddleware()(mux))))
}
