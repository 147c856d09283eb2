package auth

import (
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are carried by access tokens. Version must match the user's
// current version for the token to be accepted.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Version int64  `json:"v"`
}

type Config struct {
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	CookieSecure bool
}

// ConfigFromEnv reads AUTH_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Issuer:     os.Getenv("AUTH_ISSUER"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "http://localhost:8000"
	}
	if d, err := time.ParseDuration(os.Getenv("AUTH_ACCESS_TTL")); err == nil && d > 0 {
		cfg.AccessTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("AUTH_REFRESH_TTL")); err == nil && d > 0 {
		cfg.RefreshTTL = d
	}
	cfg.CookieSecure, _ = strconv.ParseBool(os.Getenv("AUTH_COOKIE_SECURE"))
	return cfg
}
