package authclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/ovaphlow/pitchfork/service-health-go/pkg/utilities"
)

const HeaderRequestID = "X-Request-ID"

// Options wires a Client. Only Config.BaseURL is required.
type Options struct {
	Config Config
	// HTTPClient carries both ordinary calls and the renewal call. When nil a
	// client with a cookie jar and Config.RequestTimeout is built.
	HTTPClient *http.Client
	Holder     *CredentialHolder
	// Renewer defaults to an HTTPRenewer on Config.RefreshPath.
	Renewer        Renewer
	DisableRenewal bool
	OnInvalidate   InvalidateFunc
	// InvalidCredential decides which responses trigger renewal. Defaults to
	// HTTP 401.
	InvalidCredential func(*http.Response) bool
	Logger            *zap.SugaredLogger
	Registerer        prometheus.Registerer
}

// Client dispatches requests with the current credential attached and replays
// a request once after a renewal.
type Client struct {
	cfg               Config
	http              *http.Client
	holder            *CredentialHolder
	coord             *Coordinator
	invalidator       *Invalidator
	invalidCredential func(*http.Response) bool
	logger            *zap.SugaredLogger
	metrics           *Metrics
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	cfg := opts.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("authclient config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hc := opts.HTTPClient
	if hc == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		hc = &http.Client{Timeout: cfg.RequestTimeout, Jar: jar}
	}
	holder := opts.Holder
	if holder == nil {
		holder = NewCredentialHolder()
	}
	isInvalid := opts.InvalidCredential
	if isInvalid == nil {
		isInvalid = func(resp *http.Response) bool { return resp.StatusCode == http.StatusUnauthorized }
	}
	metrics := NewMetrics(opts.Registerer)
	inv := NewInvalidator(holder, opts.OnInvalidate, logger, metrics)

	c := &Client{
		cfg:               cfg,
		http:              hc,
		holder:            holder,
		invalidator:       inv,
		invalidCredential: isInvalid,
		logger:            logger,
		metrics:           metrics,
	}
	if !opts.DisableRenewal {
		renewer := opts.Renewer
		if renewer == nil {
			renewer = &HTTPRenewer{URL: cfg.endpoint(cfg.RefreshPath), HTTPClient: hc, UserAgent: cfg.UserAgent}
		}
		c.coord = NewCoordinator(holder, renewer, inv, cfg.RefreshTimeout, logger, metrics)
	}
	return c, nil
}

// Holder returns the credential cell shared by every request of c.
func (c *Client) Holder() *CredentialHolder { return c.holder }

// Invalidator returns the handler that ends the session of c.
func (c *Client) Invalidator() *Invalidator { return c.invalidator }

// Config returns the effective configuration, defaults applied.
func (c *Client) Config() Config { return c.cfg }

// Do sends req with the current credential. Transport errors and non-401
// responses are returned as they are. A 401 on a request sent without a
// credential is returned as an *APIError right away. Otherwise a 401 hands over to the Coordinator and
// the request is replayed once with the renewed credential; a second 401 is
// returned as an *APIError matching ErrUnauthorized.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := rewindable(req); err != nil {
		return nil, err
	}
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = utilities.NewKSUID()
	}

	cred, epoch := c.holder.snapshot()
	resp, err := c.send(req, cred, requestID)
	if err != nil {
		return nil, err
	}
	if !c.invalidCredential(resp) {
		return resp, nil
	}
	rejected := readAPIError(resp)
	if c.coord == nil || cred.IsZero() {
		// Nothing was presented, so there is nothing to renew.
		return nil, rejected
	}

	fresh, err := c.coord.Renew(req.Context(), epoch)
	if err != nil {
		c.logger.Debugw("request not replayed", "request_id", requestID, "path", req.URL.Path, "err", err)
		return nil, err
	}

	replay, err := rewind(req)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(replay, fresh, requestID)
	if err != nil {
		c.metrics.replay("error")
		return nil, err
	}
	if c.invalidCredential(resp) {
		c.metrics.replay("rejected")
		apiErr := readAPIError(resp)
		apiErr.Replayed = true
		c.logger.Warnw("credential rejected after renewal", "request_id", requestID, "path", req.URL.Path)
		return nil, apiErr
	}
	c.metrics.replay("ok")
	return resp, nil
}

func (c *Client) send(req *http.Request, cred Credential, requestID string) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set(HeaderRequestID, requestID)
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if cred.IsZero() {
		out.Header.Del("Authorization")
	} else {
		out.Header.Set("Authorization", "Bearer "+string(cred))
	}
	start := time.Now()
	resp, err := c.http.Do(out)
	if err != nil {
		c.logger.Debugw("http request failed", "method", out.Method, "path", out.URL.Path, "request_id", requestID, "err", err)
		return nil, err
	}
	c.logger.Debugw("http request",
		"method", out.Method,
		"path", out.URL.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return resp, nil
}

// rewindable makes sure req.GetBody can reproduce the body for a replay.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	out.Body = body
	return out, nil
}
