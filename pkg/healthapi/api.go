// Package healthapi is the typed surface of the health-tracking backend,
// carried over authclient so every call shares one credential and one renewal.
package healthapi

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-health-go/pkg/authclient"
)

const (
	pathHealth  = "/api/v1/health"
	pathSignup  = "/api/v1/auth/signup"
	pathLogin   = "/api/v1/auth/login"
	pathLogout  = "/api/v1/auth/logout"
	pathMe      = "/api/v1/auth/me"
	pathProfile = "/api/v1/users/profile"
)

type API struct {
	c *authclient.Client
}

func New(c *authclient.Client) *API {
	return &API{c: c}
}

func (a *API) Client() *authclient.Client { return a.c }

func (a *API) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := a.c.Get(ctx, pathHealth, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and stores the issued credential. The refresh cookie
// lands in the client's jar.
func (a *API) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return a.authenticate(ctx, pathLogin, LoginRequest{Email: email, Password: password})
}

func (a *API) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	return a.authenticate(ctx, pathSignup, req)
}

func (a *API) authenticate(ctx context.Context, path string, in any) (*AuthResponse, error) {
	var out AuthResponse
	if err := a.c.Post(ctx, path, in, &out); err != nil {
		return nil, err
	}
	if out.Session.AccessToken == "" {
		return nil, errors.New("auth response carries no access token")
	}
	a.c.Holder().Set(authclient.Credential(out.Session.AccessToken))
	return &out, nil
}

// Logout revokes the session server side and always clears the local
// credential, even when the backend call fails.
func (a *API) Logout(ctx context.Context) error {
	if a.c.Holder().Get().IsZero() {
		return nil
	}
	var out MessageResponse
	err := a.c.Post(ctx, pathLogout, nil, &out)
	a.c.Holder().Clear()
	if err != nil && !errors.Is(err, authclient.ErrUnauthorized) && !errors.Is(err, authclient.ErrSessionInvalidated) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (a *API) Me(ctx context.Context) (*User, error) {
	if err := a.requireSession(); err != nil {
		return nil, err
	}
	var out User
	if err := a.c.Get(ctx, pathMe, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Profile(ctx context.Context) (*Profile, error) {
	if err := a.requireSession(); err != nil {
		return nil, err
	}
	var out Profile
	if err := a.c.Get(ctx, pathProfile, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Profile, error) {
	if err := a.requireSession(); err != nil {
		return nil, err
	}
	var out Profile
	if err := a.c.Patch(ctx, pathProfile, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dashboard loads the user, the profile and backend health concurrently. When
// the credential has expired all authenticated calls share one renewal.
func (a *API) Dashboard(ctx context.Context) (*Dashboard, error) {
	if err := a.requireSession(); err != nil {
		return nil, err
	}
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := a.Me(gctx)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		d.User = *u
		return nil
	})
	g.Go(func() error {
		p, err := a.Profile(gctx)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		d.Profile = *p
		return nil
	})
	g.Go(func() error {
		h, err := a.Health(gctx)
		if err != nil {
			return fmt.Errorf("load health: %w", err)
		}
		d.Health = *h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *API) requireSession() error {
	if a.c.Holder().Get().IsZero() {
		return authclient.ErrNoCredential
	}
	return nil
}
