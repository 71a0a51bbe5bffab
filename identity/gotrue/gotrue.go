// Package gotrue implements identity.Provider against a GoTrue-compatible
// auth service (the /auth/v1 API exposed by Supabase).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vdutts/vault/identity"
)

const defaultTimeout = 10 * time.Second

// Client talks to a GoTrue /auth/v1 endpoint. It remembers the access token
// of the last sign-in (or resumed session) so SignOut can revoke it.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger

	mu          sync.Mutex
	accessToken string
}

var (
	_ identity.Provider       = (*Client)(nil)
	_ identity.TokenValidator = (*Client)(nil)
	_ identity.Resumer        = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New returns a Client for the service at baseURL (e.g.
// "https://xyz.supabase.co"). apiKey is sent as the apikey header.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, bearer string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", req.Method, req.URL.Path, err, identity.ErrUnavailable)
	}
	return resp, nil
}

func decodeError(resp *http.Response) string {
	var e errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e); err != nil {
		return resp.Status
	}
	if t := e.text(); t != "" {
		return t
	}
	return resp.Status
}

func (c *Client) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password",
		passwordGrantRequest{Email: email, Password: password}, "")
	if err != nil {
		return identity.Session{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return identity.Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return identity.Session{}, fmt.Errorf("sign in: %s: %w", decodeError(resp), identity.ErrUnavailable)
	default:
		return identity.Session{}, fmt.Errorf("sign in: %s: %w", decodeError(resp), identity.ErrInvalidCredentials)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return identity.Session{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return identity.Session{}, fmt.Errorf("sign in: response carried no access token: %w", identity.ErrUnavailable)
	}

	sess := identity.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		UserID:       tr.User.ID,
		Email:        tr.User.Email,
	}
	switch {
	case tr.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		sess.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	c.Resume(sess.AccessToken)
	c.logger.Debug("gotrue: signed in", "user_id", sess.UserID)
	return sess, nil
}

// SignOut revokes the current session. With no current session it does nothing.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.accessToken = ""
	c.mu.Unlock()
	if token == "" {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, token)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// An already-dead token means the server side is signed out too.
	if resp.StatusCode < 300 || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil
	}
	return fmt.Errorf("sign out: %s: %w", decodeError(resp), identity.ErrUnavailable)
}

// Resume adopts token as the current session.
func (c *Client) Resume(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// ValidateToken asks the service for the user behind token.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil, token)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("validate token: %s: %w", decodeError(resp), identity.ErrTokenInvalid)
	default:
		return fmt.Errorf("validate token: %s: %w", decodeError(resp), identity.ErrUnavailable)
	}
}
