package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Session is the ephemeral credential pair produced by one authentication:
// the browser's cookies plus the intercepted bearer header. It lives for a
// single run and is never reused across authentication failures.
type Session struct {
	Jar    http.CookieJar
	Bearer string // full header value, "Bearer eyJ..."
}

// Client posts JSON search requests to the portal API carrying the session
// cookies and bearer token the browser login produced. Every call has its
// own timeout; there is no cross-call cancellation.
type Client struct {
	baseURL string
	origin  string
	http    *http.Client
	bearer  string
	retry   *RetryPolicy
	logger  *zap.Logger
}

// NewClient builds a client bound to one authenticated session
func NewClient(baseURL, origin string, session *Session, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  origin,
		http: &http.Client{
			Jar:     session.Jar,
			Timeout: timeout,
		},
		bearer: session.Bearer,
		retry:  NewRetryPolicy(),
		logger: logger,
	}
}

// NewKeyClient builds a client that authenticates with a per-station API key
// instead of a browser session. Used by the sales pipeline.
func NewKeyClient(baseURL, origin, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		origin:  origin,
		http:    &http.Client{Timeout: timeout},
		bearer:  "Bearer " + apiKey,
		retry:   NewRetryPolicy(),
		logger:  logger,
	}
}

// SetBearer swaps the credential mid-run (key rotation)
func (c *Client) SetBearer(apiKey string) {
	c.bearer = "Bearer " + apiKey
}

// PostJSON posts payload to path and decodes the response into out. Non-2xx
// statuses come back as *StatusError. No retrying happens here; callers go
// through PostJSONRetry or the pagination engine.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) (http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Referer", c.origin+"/")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.Header, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// PostJSONRetry is PostJSON behind the retry policy
func (c *Client) PostJSONRetry(ctx context.Context, path string, payload, out any) error {
	return c.retry.Do(ctx, func() error {
		_, err := c.PostJSON(ctx, path, payload, out)
		return err
	})
}
