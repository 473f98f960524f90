package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// NewPassthrough forwards every request unchanged to origin. It fronts the marketing site and
// the tool app, which live elsewhere.
func NewPassthrough(name, origin string, transport http.RoundTripper, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("%s origin: %w", name, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New(name + " origin must be absolute")
	}
	log := logger.With("component", "passthrough", "target", name)
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("Passthrough error", "error", err, "path", r.URL.Path)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}, nil
}
