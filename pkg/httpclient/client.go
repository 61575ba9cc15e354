// Package httpclient is the outbound JSON/form client shared by provider
// gateways, the catalog and the storefront sync.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBody caps how much of a response is read into memory.
const maxBody = 4 << 20

// StatusError is returned for non-2xx responses; Body holds the start of the
// response for logging.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	JSON   any
	Form   url.Values
	// Body is sent verbatim with ContentType when JSON and Form are unset.
	Body        []byte
	ContentType string
	BasicID     string
	// BasicSecret goes with BasicID for HTTP basic auth.
	BasicSecret string
}

// Do sends req and returns the raw response body. Non-2xx statuses come back
// as *StatusError together with the body.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
		contentType = req.ContentType
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	hr, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if contentType != "" {
		hr.Header.Set("Content-Type", contentType)
	}
	hr.Header.Set("Accept", "application/json")
	if req.BasicID != "" {
		hr.SetBasicAuth(req.BasicID, req.BasicSecret)
	}

	resp, err := c.httpClient.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return raw, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return raw, nil
}

// DoJSON sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	raw, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) PostJSON(ctx context.Context, url string, payload, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, URL: url, JSON: payload}, out)
}

func (c *Client) PostForm(ctx context.Context, url string, form url.Values) ([]byte, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Form: form})
}

func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryable reports whether resending the same request may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
