// Package scoreapi is the HTTP client for the remote scoring service.
//
// Every call takes a bearer token obtained by the caller; responses are
// decoded into explicit result types and validated here so nothing
// downstream handles loosely shaped payloads.
package scoreapi

import (
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

	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/pkg/logger"
	"github.com/okian/crediscout/pkg/metrics"
)

// Endpoint paths.
const (
	dashboardPath   = "/api/dashboard"
	scoresPath      = "/api/scores"
	certificatePath = "/api/certificate/"
	uploadPath      = "/api/upload"
)

// Client defaults.
const (
	defaultTimeout        = 30 * time.Second
	defaultJSONLimit      = 4 << 20
	defaultBinaryLimit    = 32 << 20
	noScoresMarker        = "No scores found"
	bearerPrefix          = "Bearer "
	millisecondsPerSecond = 1000.0
)

// Sentinel errors.
var (
	ErrInvalidPayload    = errors.New("invalid payload from scoring service")
	ErrResponseTooLarge  = errors.New("response body exceeded limit")
	ErrMissingToken      = errors.New("missing bearer token")
	ErrMissingSnapshotID = errors.New("missing snapshot id")
)

// StatusError is a non-2xx answer from the service. Detail carries the
// service's human-readable explanation when it sent one.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("scoring service returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("scoring service returned %d", e.StatusCode)
}

// UserMessage exposes the upstream detail for display.
func (e *StatusError) UserMessage() string { return e.Detail }

// Detail returns the upstream detail string carried by err, if any.
func Detail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}

// Client talks to the scoring service.
type Client struct {
	baseURL     string
	http        *http.Client
	jsonLimit   int64
	binaryLimit int64
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

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBodyLimits caps how much of a JSON or binary response is read.
func WithBodyLimits(jsonLimit, binaryLimit int64) Option {
	return func(c *Client) {
		if jsonLimit > 0 {
			c.jsonLimit = jsonLimit
		}
		if binaryLimit > 0 {
			c.binaryLimit = binaryLimit
		}
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: defaultTimeout},
		jsonLimit:   defaultJSONLimit,
		binaryLimit: defaultBinaryLimit,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot retrieves the latest scored snapshot for the token's user.
func (c *Client) Snapshot(ctx context.Context, token string) (model.SnapshotResult, error) {
	body, err := c.get(ctx, "dashboard", dashboardPath, token, c.jsonLimit)
	if err != nil {
		return model.SnapshotResult{}, err
	}

	var wire dashboardResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return model.SnapshotResult{}, fmt.Errorf("%w: decode dashboard: %v", ErrInvalidPayload, err)
	}
	return wire.result()
}

// History retrieves every scored snapshot, oldest first.
func (c *Client) History(ctx context.Context, token string) (model.ScoreHistory, error) {
	body, err := c.get(ctx, "scores", scoresPath, token, c.jsonLimit)
	if err != nil {
		return nil, err
	}

	var wire []historyEntry
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode scores: %v", ErrInvalidPayload, err)
	}
	return historyResult(wire)
}

// Certificate downloads the PDF report for snapshot id.
func (c *Client) Certificate(ctx context.Context, token, id string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingSnapshotID
	}
	return c.get(ctx, "certificate", certificatePath+url.PathEscape(id), token, c.binaryLimit)
}

func (c *Client) get(ctx context.Context, endpoint, path, token string, limit int64) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, endpoint, limit)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	if token == "" {
		return nil, failure.Unauthenticated(ErrMissingToken)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", bearerPrefix+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes req and returns the body of a 2xx answer. 401 and 403 are
// classified as authentication failures.
func (c *Client) do(req *http.Request, endpoint string, limit int64) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(endpoint, req.Method, "transport_error")
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn(req.Context(), "failed to close response body", logger.Error(cerr))
		}
	}()

	status := strconv.Itoa(resp.StatusCode)
	metrics.RecordAPIRequest(endpoint, req.Method, status)
	metrics.RecordAPIRequestDuration(endpoint, req.Method, status, float64(time.Since(start).Microseconds())/millisecondsPerSecond)

	body, err := readAllWithLimit(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		se := &StatusError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
		c.logger.Debug(req.Context(), "scoring service error",
			logger.String("endpoint", endpoint),
			logger.Int("status", resp.StatusCode),
			logger.String("detail", se.Detail),
		)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, failure.Unauthenticated(se)
		}
		return nil, se
	}
	return body, nil
}

// parseDetail extracts a string "detail" field from an error body.
func parseDetail(body []byte) string {
	var wire struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || len(wire.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(wire.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

// readAllWithLimit reads at most limit bytes and fails beyond it.
func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}
