package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/response"
	"github.com/stemsi/tricol-console/internal/service"
)

// ProxyPrefix is where the browser reaches backend resources.
const ProxyPrefix = "/api/backend"

type proxyErrKey struct{}

// proxyFailure collects the transport error of one proxied call so it can
// be rendered with the gin context.
type proxyFailure struct {
	err error
}

// ProxyHandler forwards resource calls (suppliers, products, orders, stock,
// exit slips) to the backend through the credential interceptor, so they
// carry the bearer token and survive token expiry.
type ProxyHandler struct {
	proxy   *httputil.ReverseProxy
	maxBody int64
	log     zerolog.Logger
}

// NewProxyHandler proxies to baseURL using transport, which is expected to
// be the credential interceptor.
func NewProxyHandler(baseURL string, transport http.RoundTripper, maxBody int64, log zerolog.Logger) (*ProxyHandler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("proxy target must be an absolute URL")
	}

	h := &ProxyHandler{
		maxBody: maxBody,
		log:     log.With().Str("component", "proxy").Logger(),
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, ProxyPrefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			// The interceptor owns the credential; browser-supplied ones are dropped.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport: transport,
		ErrorHandler: func(_ http.ResponseWriter, r *http.Request, err error) {
			if f, ok := r.Context().Value(proxyErrKey{}).(*proxyFailure); ok {
				f.err = err
			}
		},
	}
	return h, nil
}

// Forward godoc
// ANY /api/backend/*path
func (h *ProxyHandler) Forward(c *gin.Context) {
	if h.maxBody > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}
	if id := response.RequestID(c); id != "" {
		c.Request.Header.Set(response.HeaderRequestID, id)
	}

	failure := &proxyFailure{}
	req := c.Request.WithContext(context.WithValue(c.Request.Context(), proxyErrKey{}, failure))
	h.proxy.ServeHTTP(c.Writer, req)

	if failure.err != nil {
		h.renderError(c, failure.err)
	}
}

func (h *ProxyHandler) renderError(c *gin.Context, err error) {
	var (
		authErr  *service.AuthError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &authErr):
		h.log.Info().Err(err).Str("path", c.Request.URL.Path).Msg("Proxied call ended the session")
		writeAuthError(c, authErr)
	case errors.As(err, &tooLarge):
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrPayloadTooLarge)
	case c.Request.Context().Err() != nil:
		c.Status(499)
	default:
		h.log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Backend unreachable")
		response.Fail(c, http.StatusBadGateway, response.ErrNetworkUnreachable)
	}
}
