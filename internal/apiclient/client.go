// Package apiclient talks to the Tricol REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backend paths, relative to the API base URL.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"
	PathUsers    = "/admin/users"
)

const maxResponseBytes = 4 << 20

// APIError describes a failed backend call. Status is zero when no response
// was received at all.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Status > 0 && e.Message != "":
		return fmt.Sprintf("%s: status=%d: %s", e.Op, e.Status, e.Message)
	case e.Status > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Unreachable reports whether the call failed before any response arrived.
func (e *APIError) Unreachable() bool {
	return e != nil && e.Status == 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client is a thin JSON client bound to one API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for baseURL. A nil httpClient gets a default one
// with the given timeout.
func New(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the API base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient exposes the underlying client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
	out    any
}

func (c *Client) do(ctx context.Context, cl call) error {
	target := c.baseURL + ensureLeadingSlash(cl.path)
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var reader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return &APIError{Op: cl.op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, reader)
	if err != nil {
		return &APIError{Op: cl.op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Errors returned by a RoundTripper are kept intact so callers can
		// match them with errors.Is.
		return &APIError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Op:      cl.op,
			Status:  resp.StatusCode,
			Message: extractMessage(data),
		}
	}

	switch out := cl.out.(type) {
	case nil:
		return nil
	case *string:
		*out = strings.TrimSpace(string(data))
		return nil
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return &APIError{Op: cl.op, Status: resp.StatusCode, Err: errors.New("empty response body")}
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &APIError{Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
}

// extractMessage pulls a human readable message out of an error body. The
// backend answers with {"message": "..."} or {"error": "..."} or plain text.
func extractMessage(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ""
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &body); err == nil {
			if body.Message != "" {
				return body.Message
			}
			return body.Error
		}
		return ""
	}

	msg := string(trimmed)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

func ensureLeadingSlash(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	return "/" + trimmed
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
