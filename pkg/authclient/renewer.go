package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Renewer exchanges the refresh evidence for a new access credential. It is
// called by the Coordinator only, never through Client.Do.
type Renewer interface {
	Renew(ctx context.Context) (Credential, error)
}

// RenewerFunc adapts a function to Renewer.
type RenewerFunc func(ctx context.Context) (Credential, error)

func (f RenewerFunc) Renew(ctx context.Context) (Credential, error) { return f(ctx) }

// HTTPRenewer calls the backend refresh endpoint. The refresh token normally
// travels as an httpOnly cookie held by the http.Client's jar; RefreshToken,
// when set, supplies it in the body instead.
type HTTPRenewer struct {
	URL          string
	HTTPClient   *http.Client
	RefreshToken func() string
	UserAgent    string
}

type sessionEnvelope struct {
	Session struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	} `json:"session"`
}

func (r *HTTPRenewer) Renew(ctx context.Context) (Credential, error) {
	payload := map[string]string{}
	if r.RefreshToken != nil {
		if rt := r.RefreshToken(); rt != "" {
			payload["refresh_token"] = rt
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	hc := r.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("send refresh request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	defer resp.Body.Close()

	var env sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if env.Session.AccessToken == "" {
		return "", errors.New("refresh response carries no access token")
	}
	return Credential(env.Session.AccessToken), nil
}
