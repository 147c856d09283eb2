package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultRefreshPath    = "/api/v1/auth/refresh"
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:8000.
	BaseURL     string
	RefreshPath string
	// RequestTimeout bounds every ordinary call.
	RequestTimeout time.Duration
	// RefreshTimeout bounds the renewal call. It defaults to RequestTimeout;
	// expiry counts as a renewal failure.
	RefreshTimeout time.Duration
	UserAgent      string
}

func DefaultConfig(baseURL string) Config {
	return Config{BaseURL: baseURL}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = c.RequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = "vitals-client/1"
	}
	return c
}

// Validate reports whether the configuration can address a backend.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url scheme %q not supported", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("base url has no host")
	}
	return nil
}

func (c Config) endpoint(path string) string {
	base := c.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(path) > 0 && path[0] != '/' {
		path = "/" + path
	}
	return base + path
}
