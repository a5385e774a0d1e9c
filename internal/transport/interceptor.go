// Package transport provides the outbound HTTP plumbing shared by every
// authenticated backend call.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/tricol-console/internal/apiclient"
)

// HeaderRequestID carries the correlation id of a call.
const HeaderRequestID = "X-Request-ID"

const defaultMaxReplayBytes = 10 << 20

// Credentials is what the interceptor needs from the authentication layer.
type Credentials interface {
	// AccessToken returns the current access token, or "" when signed out.
	AccessToken() string
	// Refresh exchanges the stored refresh token for a new session.
	Refresh(ctx context.Context) error
}

// Interceptor is an http.RoundTripper that attaches the current bearer
// token and, on a 401, runs one shared refresh and retries the request once.
type Interceptor struct {
	next           http.RoundTripper
	creds          Credentials
	refreshes      singleflight.Group
	maxReplayBytes int64
	exempt         []string
	log            zerolog.Logger
}

var _ http.RoundTripper = (*Interceptor)(nil)

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithMaxReplayBytes caps how much of a request body without GetBody is
// buffered for a retry. Larger bodies are streamed and never retried.
func WithMaxReplayBytes(n int64) Option {
	return func(i *Interceptor) {
		if n > 0 {
			i.maxReplayBytes = n
		}
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(i *Interceptor) {
		i.log = log.With().Str("component", "interceptor").Logger()
	}
}

// NewInterceptor wraps next. A nil next uses http.DefaultTransport.
func NewInterceptor(next http.RoundTripper, creds Credentials, opts ...Option) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	i := &Interceptor{
		next:           next,
		creds:          creds,
		maxReplayBytes: defaultMaxReplayBytes,
		exempt:         []string{apiclient.PathLogin, apiclient.PathRegister, apiclient.PathRefresh},
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Client returns an http.Client that routes through the interceptor.
func (i *Interceptor) Client() *http.Client {
	return &http.Client{Transport: i}
}

// IsExempt reports whether path belongs to the auth endpoints that must
// travel without a credential.
func (i *Interceptor) IsExempt(path string) bool {
	for _, p := range i.exempt {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if i.IsExempt(req.URL.Path) {
		return i.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	replay, err := i.replayable(req)
	if err != nil {
		return nil, err
	}

	sent := i.creds.AccessToken()
	resp, err := i.next.RoundTrip(i.prepare(req, sent))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !replay {
		return resp, err
	}
	drain(resp)

	token := i.creds.AccessToken()
	if token == "" || token == sent {
		// Every request failing around the same time joins one refresh.
		_, err, shared := i.refreshes.Do("refresh", func() (any, error) {
			return nil, i.creds.Refresh(context.WithoutCancel(req.Context()))
		})
		if err != nil {
			i.log.Warn().Err(err).Str("path", req.URL.Path).Msg("Refresh after 401 failed")
			return nil, err
		}
		i.log.Debug().Bool("shared", shared).Str("path", req.URL.Path).Msg("Retrying after refresh")
		token = i.creds.AccessToken()
	}

	retry := i.prepare(req, token)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return i.next.RoundTrip(retry)
}

// prepare clones req with the bearer token and a request id. The caller's
// request is never modified.
func (i *Interceptor) prepare(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.New().String())
	}
	return out
}

// replayable makes sure the body of req can be sent a second time, swapping
// in a buffered body when needed. It reports false when the body is too
// large to buffer.
func (i *Interceptor) replayable(req *http.Request) (bool, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return true, nil
	}

	buf, err := io.ReadAll(io.LimitReader(req.Body, i.maxReplayBytes+1))
	if err != nil {
		req.Body.Close()
		return false, err
	}

	if int64(len(buf)) > i.maxReplayBytes {
		req.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), req.Body), req.Body}
		return false, nil
	}

	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return true, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
