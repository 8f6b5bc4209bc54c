// Package meta implements the HTTP client for the ads platform's Graph API.
// All methods are context-aware, respect the shared rate limiter, and retry
// on transient transport errors (429, 5xx).
package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/retry"
)

const (
	// DefaultBaseURL is the versioned Graph API root.
	DefaultBaseURL = "https://graph.facebook.com/v24.0"

	// idsChunkSize bounds how many ids go into one ?ids= lookup.
	idsChunkSize = 50

	// subcodePropagation is returned while a freshly created object is not
	// yet visible to follow-up calls.
	subcodePropagation = 33
)

// Config holds the client settings resolved from configuration.
type Config struct {
	Token       string
	BaseURL     string
	Timeout     time.Duration
	Rate        float64
	Concurrency int
	Debug       bool
}

// Client is the Graph API HTTP client.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	concurrency int
	debug       bool

	transport retry.Policy
	copyRetry retry.Policy
}

// NewClient creates a Client from c, filling defaults for zero values.
func NewClient(c Config) *Client {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Rate <= 0 {
		c.Rate = 5
	}
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	burst := int(c.Rate)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(c.BaseURL, "/"),
		token:       c.Token,
		httpClient:  &http.Client{Timeout: c.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(c.Rate), burst),
		concurrency: c.Concurrency,
		debug:       c.Debug,
		transport: retry.Policy{
			Name:        "graph transport",
			MaxAttempts: 4,
			Delays:      []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
			Retryable:   isTransientHTTP,
		},
		copyRetry: CopyPolicy(),
	}
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// APIError is a non-success Graph response. Payload keeps the raw body for
// diagnostics.
type APIError struct {
	Status  int             `json:"status"`
	Code    int             `json:"code"`
	Subcode int             `json:"error_subcode"`
	Type    string          `json:"type,omitempty"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Subcode != 0 {
		return fmt.Sprintf("graph HTTP %d (code %d, subcode %d): %s", e.Status, e.Code, e.Subcode, msg)
	}
	if e.Code != 0 {
		return fmt.Sprintf("graph HTTP %d (code %d): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("graph HTTP %d: %s", e.Status, msg)
}

// IsTransientSubcode reports whether err carries the propagation-delay
// subcode that clears on its own after a short wait.
func IsTransientSubcode(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Subcode == subcodePropagation
}

// CopyPolicy retries copy calls that hit the propagation-delay subcode.
func CopyPolicy() retry.Policy {
	return retry.Policy{
		Name:        "graph copy",
		MaxAttempts: 4,
		Delays:      []time.Duration{1500 * time.Millisecond, 3 * time.Second, 5 * time.Second},
		Retryable:   IsTransientSubcode,
	}
}

// transportError marks failures below the HTTP layer so they are retried.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransientHTTP(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return false
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if json.Valid(body) {
		apiErr.Payload = json.RawMessage(body)
	}
	var wire struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
			Subcode int    `json:"error_subcode"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil {
		apiErr.Message = wire.Error.Message
		apiErr.Type = wire.Error.Type
		apiErr.Code = wire.Error.Code
		apiErr.Subcode = wire.Error.Subcode
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET on path with params.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.call(ctx, http.MethodGet, c.endpoint(path), params, out)
}

// post sends params as a form body to path.
func (c *Client) post(ctx context.Context, path string, params url.Values, out any) error {
	return c.call(ctx, http.MethodPost, c.endpoint(path), params, out)
}

// del performs a DELETE on path.
func (c *Client) del(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodDelete, c.endpoint(path), url.Values{}, out)
}

func (c *Client) endpoint(path string) string {
	if path == "" {
		return c.baseURL + "/"
	}
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return c.baseURL + "/" + strings.Join(segs, "/")
}

// getAll follows paging.next from path and returns every data element.
func (c *Client) getAll(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	next := c.endpoint(path)
	for next != "" {
		var page struct {
			Data   []json.RawMessage `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := c.call(ctx, http.MethodGet, next, params, &page); err != nil {
			return all, err
		}
		all = append(all, page.Data...)
		next = page.Paging.Next
		// next already carries every query parameter, token included.
		params = nil
	}
	return all, nil
}

// call sends one logical request, retrying transient failures.
func (c *Client) call(ctx context.Context, method, rawURL string, params url.Values, out any) error {
	var reqURL string
	var body string
	if params != nil {
		params.Set("access_token", c.token)
		if method == http.MethodPost {
			reqURL, body = rawURL, params.Encode()
		} else {
			reqURL = rawURL + "?" + params.Encode()
		}
	} else {
		reqURL = rawURL
	}

	if c.debug {
		slog.Debug("graph request", "method", method, "url", c.redact(reqURL))
	}

	raw, err := retry.DoValue(ctx, c.transport, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, method, reqURL, body)
	})
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding graph response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, reqURL, body string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "arbdash-cli/1.0")
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: fmt.Errorf("http: %s", c.redact(err.Error()))}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("reading body: %w", err)}
	}
	if c.debug {
		slog.Debug("graph response", "status", resp.StatusCode, "bytes", len(data))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// redact strips the access token from s before it is logged or returned.
func (c *Client) redact(s string) string {
	if c.token == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(c.token), "REDACTED")
	return strings.ReplaceAll(s, c.token, "REDACTED")
}
