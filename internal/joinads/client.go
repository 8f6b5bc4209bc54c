// Package joinads implements the HTTP client for the publisher-analytics
// platform's client endpoints. Requests are authenticated with a bearer
// token, rate limited, and retried on 429 and 5xx responses.
package joinads

import (
	"bytes"
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

// DefaultBaseURL is the root of the client endpoints.
const DefaultBaseURL = "https://office.joinads.me/api/clients-endpoints"

// Client is the analytics platform HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	debug      bool
}

// NewClient creates a Client with the given bearer token and timeout.
func NewClient(token, baseURL string, timeout time.Duration, ratePerSec float64, debug bool) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		policy: retry.Policy{
			Name:        "joinads",
			MaxAttempts: 4,
			Delays:      []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
			Retryable:   retryable,
		},
		debug: debug,
	}
}

// APIError is a non-success response. Payload keeps the raw body.
type APIError struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("joinads HTTP %d", e.Status)
	}
	return fmt.Sprintf("joinads HTTP %d: %s", e.Status, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if json.Valid(body) {
		e.Payload = json.RawMessage(body)
		var wire struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(body, &wire) == nil {
			e.Message = wire.Message
			if e.Message == "" {
				e.Message = wire.Error
			}
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

type netError struct{ err error }

func (e *netError) Error() string { return e.err.Error() }
func (e *netError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var ne *netError
	if errors.As(err, &ne) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500)
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", endpoint, err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+endpoint, b, out)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	if c.token == "" {
		return errors.New("joinads access token is not configured")
	}
	if c.debug {
		slog.Debug("joinads request", "method", method, "url", u)
	}
	raw, err := retry.DoValue(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &netError{err: fmt.Errorf("http: %w", err)}
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &netError{err: fmt.Errorf("reading body: %w", err)}
		}
		if c.debug {
			slog.Debug("joinads response", "status", resp.StatusCode, "bytes", len(data))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(resp.StatusCode, data)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding joinads response: %w", err)
	}
	return nil
}
