// Package identity signs users in against a REST identity toolkit and hands
// out refreshed bearer tokens for the scoring service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/crediscout/pkg/logger"
)

// Toolkit endpoints, relative to the auth base URL.
const (
	signInPath = "/accounts:signInWithPassword"
	signUpPath = "/accounts:signUp"
	updatePath = "/accounts:update"
	lookupPath = "/accounts:lookup"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultRefreshSkew = time.Minute
	maxResponseBytes   = 1 << 20
)

// Sentinel errors.
var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrSignedOut          = errors.New("identity has been signed out")
	ErrMissingAPIKey      = errors.New("identity api key is not configured")
)

// AuthError is a rejection from the identity toolkit. Message is suitable
// for display; Code is the toolkit's machine-readable reason.
type AuthError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity toolkit rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to the identity toolkit.
type Client struct {
	authURL     string
	tokenURL    string
	apiKey      string
	http        *http.Client
	refreshSkew time.Duration
	now         func() time.Time
	logger      logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRefreshSkew refreshes tokens this long before they expire.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.refreshSkew = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates an identity client.
func NewClient(authURL, tokenURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		authURL:     strings.TrimRight(authURL, "/"),
		tokenURL:    tokenURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: defaultTimeout},
		refreshSkew: defaultRefreshSkew,
		now:         time.Now,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	var resp tokenResponse
	if err := c.postJSON(ctx, c.authURL+signInPath, credentialsRequest{email, password, true}, &resp); err != nil {
		return nil, err
	}
	u := c.newUser(resp)
	c.enrich(ctx, u)
	c.logger.Info(ctx, "signed in", logger.String("uid", u.UID()))
	return u, nil
}

// Register creates an account and, when displayName is set, records it on
// the new profile.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	var resp tokenResponse
	if err := c.postJSON(ctx, c.authURL+signUpPath, credentialsRequest{email, password, true}, &resp); err != nil {
		return nil, err
	}
	u := c.newUser(resp)

	if name := strings.TrimSpace(displayName); name != "" {
		update := struct {
			IDToken           string `json:"idToken"`
			DisplayName       string `json:"displayName"`
			ReturnSecureToken bool   `json:"returnSecureToken"`
		}{resp.IDToken, name, false}
		var out tokenResponse
		if err := c.postJSON(ctx, c.authURL+updatePath, update, &out); err != nil {
			// The account exists; a missing display name is not fatal.
			c.logger.Warn(ctx, "failed to set display name", logger.Error(err))
		} else {
			u.mu.Lock()
			u.displayName = name
			u.mu.Unlock()
		}
	}

	c.enrich(ctx, u)
	c.logger.Info(ctx, "registered", logger.String("uid", u.UID()))
	return u, nil
}

func (c *Client) newUser(resp tokenResponse) *User {
	return &User{
		client:       c,
		uid:          resp.LocalID,
		email:        resp.Email,
		displayName:  resp.DisplayName,
		idToken:      resp.IDToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    c.expiry(resp.ExpiresIn),
	}
}

func (c *Client) expiry(expiresIn string) time.Time {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		// Unknown lifetime: refresh on next use.
		return c.now()
	}
	return c.now().Add(time.Duration(secs) * time.Second)
}

// enrich fills the account creation time. Failures only cost the
// member-since line of the profile.
func (c *Client) enrich(ctx context.Context, u *User) {
	var resp struct {
		Users []struct {
			LocalID     string `json:"localId"`
			DisplayName string `json:"displayName"`
			CreatedAt   string `json:"createdAt"`
		} `json:"users"`
	}
	req := struct {
		IDToken string `json:"idToken"`
	}{u.idToken}
	if err := c.postJSON(ctx, c.authURL+lookupPath, req, &resp); err != nil {
		c.logger.Debug(ctx, "account lookup failed", logger.Error(err))
		return
	}
	if len(resp.Users) == 0 {
		return
	}
	info := resp.Users[0]
	u.mu.Lock()
	defer u.mu.Unlock()
	if ms, err := strconv.ParseInt(info.CreatedAt, 10, 64); err == nil && ms > 0 {
		u.createdAt = time.UnixMilli(ms).UTC()
	}
	if u.displayName == "" {
		u.displayName = info.DisplayName
	}
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (refreshResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	endpoint, err := c.withKey(c.tokenURL)
	if err != nil {
		return refreshResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return refreshResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out refreshResponse
	if err := c.do(req, &out); err != nil {
		return refreshResponse{}, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, rawURL string, payload, out any) error {
	endpoint, err := c.withKey(rawURL)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) withKey(rawURL string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse identity url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn(req.Context(), "failed to close response body", logger.Error(cerr))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return toAuthError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

func toAuthError(status int, body []byte) *AuthError {
	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &wire)

	code := wire.Error.Message
	// Codes may carry a trailing explanation: "WEAK_PASSWORD : Password should be ...".
	if i := strings.Index(code, " : "); i >= 0 {
		code = code[:i]
	}
	return &AuthError{StatusCode: status, Code: code, Message: friendlyMessage(code)}
}

func friendlyMessage(code string) string {
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return "Invalid email or password."
	case "EMAIL_EXISTS":
		return "An account with this email already exists."
	case "WEAK_PASSWORD":
		return "Password should be at least 6 characters."
	case "INVALID_EMAIL":
		return "Please enter a valid email address."
	case "USER_DISABLED":
		return "This account has been disabled."
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return "Too many attempts. Please try again later."
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "INVALID_ID_TOKEN":
		return "Your session has expired. Please sign in again."
	default:
		return "Authentication failed. Please try again."
	}
}
