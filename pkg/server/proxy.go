package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"mercator-hq/keygate/pkg/security/auth"
	"mercator-hq/keygate/pkg/server/middleware"
	"mercator-hq/keygate/pkg/telemetry/tracing"
)

// Headers set on requests forwarded upstream. Inbound values are always
// discarded so clients cannot impersonate a verdict.
const (
	HeaderUser        = "X-Keygate-User"
	HeaderAuthorized  = "X-Keygate-Authorized"
	HeaderEnvironment = "X-Keygate-Environment"
	HeaderKeyless     = "X-Keygate-Keyless"
)

// NewUpstreamProxy returns a reverse proxy to upstream that forwards the
// request verdict and trace context.
func NewUpstreamProxy(upstream string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host are required", upstream)
	}

	logger := slog.Default().With("component", "server.proxy")

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host

			for _, h := range []string{HeaderUser, HeaderAuthorized, HeaderEnvironment, HeaderKeyless} {
				pr.Out.Header.Del(h)
			}
			if v, ok := auth.VerdictFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderUser, v.Name)
				pr.Out.Header.Set(HeaderAuthorized, strconv.FormatBool(v.Authorized))
				pr.Out.Header.Set(HeaderEnvironment, v.Environment)
				pr.Out.Header.Set(HeaderKeyless, strconv.FormatBool(v.KeylessEntry))
			}

			tracing.Inject(pr.In.Context(), pr.Out.Header)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream request failed",
				"upstream", target.Host,
				"path", r.URL.Path,
				"error", err,
			)
			middleware.WriteError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}, nil
}
