// Package portalapi is the only way the portal talks to the municipal
// backend. Every request goes through Client.Do, which attaches the stored
// credential and normalizes authentication failures so individual screens
// never have to.
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
	"github.com/civicportal/resident-portal/internal/pkg/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10

	headerRequestID = "X-Request-ID"
	mimeJSON        = "application/json"
)

// Endpoint paths on the backend.
const (
	PathLogin         = "/api/auth/login"
	PathProfile       = "/api/users/profile"
	PathNotifications = "/api/notifications"
	PathAnnouncements = "/api/announcements"
)

// Config holds what New needs to build a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is a JSON client for the backend REST API.
type Client struct {
	base  *url.URL
	http  *http.Client
	store ports.TokenStore
	log   zerolog.Logger

	mu             sync.RWMutex
	defaults       http.Header
	onUnauthorized func()
}

var _ ports.PortalAPI = (*Client)(nil)

// New returns a Client reading the credential from store on every request.
func New(cfg Config, store ports.TokenStore, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("portalapi: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("portalapi: base url %q must be absolute", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	defaults := make(http.Header)
	defaults.Set("Accept", mimeJSON)
	defaults.Set("Content-Type", mimeJSON)

	return &Client{base: base, http: hc, store: store, log: log, defaults: defaults}, nil
}

// SetBearer sets or, with an empty token, removes the default Authorization
// header.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.defaults.Del("Authorization")
		return
	}
	c.defaults.Set("Authorization", "Bearer "+token)
}

// OnUnauthorized registers fn to run after an unauthorized response cleared
// the token store.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// NewRequest builds a request for path relative to the base URL. A non-nil
// body is sent as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("portalapi: encode body: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}
	return http.NewRequestWithContext(ctx, method, c.resolve(path), rdr)
}

// NewMultipartRequest builds a multipart/form-data request. fill writes the
// parts; the writer is closed afterwards.
func (c *Client) NewMultipartRequest(ctx context.Context, method, path string, fill func(w *multipart.Writer) error) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := fill(w); err != nil {
		return nil, fmt.Errorf("portalapi: build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("portalapi: close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

// Do sends req and decodes a 2xx JSON body into out when out is non-nil.
// An unauthorized response clears the token store and returns an APIError of
// KindSessionExpired.
func (c *Client) Do(req *http.Request, out any) error {
	return c.do(req, out, false)
}

// Login calls the authentication endpoint. It never attaches a stored
// credential, and a 401 here means bad credentials rather than an expired
// session.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (ports.LoginResult, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, PathLogin, loginRequest{
		Email:    creds.Identifier,
		Password: creds.Password,
	})
	if err != nil {
		return ports.LoginResult{}, err
	}

	var resp loginResponse
	if err := c.do(req, &resp, true); err != nil {
		return ports.LoginResult{}, err
	}
	return ports.LoginResult{Token: resp.Token}, nil
}

// Profile fetches the current user's profile.
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	var resp profileResponse
	if err := c.GetJSON(ctx, PathProfile, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// Notifications fetches the current user's notifications.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp []Notification
	if err := c.GetJSON(ctx, PathNotifications, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Announcements fetches the published announcements.
func (c *Client) Announcements(ctx context.Context) ([]Announcement, error) {
	var resp []Announcement
	if err := c.GetJSON(ctx, PathAnnouncements, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetJSON is a GET for path decoding into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.Do(req, out)
}

// Ping reports whether the backend answers at all. Any HTTP response,
// including an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) do(req *http.Request, out any, public bool) error {
	c.prepare(req, public)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestDuration.WithLabelValues(req.URL.Path, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequestDuration.WithLabelValues(req.URL.Path, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusUnauthorized && !public {
		c.expire(req.Context())
		return sessionExpired()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := normalizeFailure(resp.StatusCode, body, public)
		c.log.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Str("kind", string(apiErr.Kind)).
			Msg("backend request failed")
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// prepare applies the default headers and the stored credential. Multipart
// requests keep their own Content-Type so the boundary survives.
func (c *Client) prepare(req *http.Request, public bool) {
	multipartBody := isMultipart(req.Header.Get("Content-Type"))

	c.mu.RLock()
	for key, values := range c.defaults {
		if key == "Authorization" && public {
			continue
		}
		if key == "Content-Type" && (multipartBody || req.Body == nil) {
			continue
		}
		if req.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	c.mu.RUnlock()

	if !public {
		token, err := c.store.Load(req.Context())
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+token)
		case !errors.Is(err, domain.ErrNoCredential):
			c.log.Warn().Err(err).Msg("token store unreadable, sending request without credential")
		}
	}

	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.NewString())
	}
}

func (c *Client) expire(ctx context.Context) {
	// The request context may already be done; clearing must still happen.
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear token store after unauthorized response")
	}

	c.mu.Lock()
	c.defaults.Del("Authorization")
	hook := c.onUnauthorized
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String()
}

func isMultipart(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}
