package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"sort"
	"strings"
	"time"

	"toolbroker/internal/config"
)

const proxyErrorBody = "Proxy error"

// NewTransport returns the upstream transport. Compression stays enabled so the transport
// negotiates gzip itself and hands back decoded bodies.
func NewTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
}

// Gateway forwards requests to the upstream whose route prefix matches the path.
type Gateway struct {
	routes []*Route
	proxy  map[*Route]*httputil.ReverseProxy
	logger *slog.Logger
}

// NewGateway compiles the route table. A nil transport means NewTransport(cfg.Timeout).
func NewGateway(cfg config.ProxyConfig, transport http.RoundTripper, logger *slog.Logger) (*Gateway, error) {
	if transport == nil {
		transport = NewTransport(cfg.Timeout)
	}
	g := &Gateway{
		proxy:  make(map[*Route]*httputil.ReverseProxy),
		logger: logger.With("component", "gateway"),
	}
	for _, rc := range cfg.Routes {
		rt, err := compileRoute(rc, cfg.UserAgent)
		if err != nil {
			return nil, err
		}
		g.routes = append(g.routes, rt)
		g.proxy[rt] = g.newReverseProxy(rt, transport)
	}
	// Longest prefix first.
	sort.SliceStable(g.routes, func(i, j int) bool {
		return len(g.routes[i].Prefix) > len(g.routes[j].Prefix)
	})
	return g, nil
}

// Routes returns the compiled routes, longest prefix first.
func (g *Gateway) Routes() []*Route {
	return g.routes
}

// Match returns the route serving path, or nil.
func (g *Gateway) Match(path string) *Route {
	for _, rt := range g.routes {
		if rt.matches(path) {
			return rt
		}
	}
	return nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt := g.Match(r.URL.Path)
	if rt == nil {
		http.NotFound(w, r)
		return
	}

	if rt.cors {
		setCORSHeaders(w.Header(), r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	if !rt.methods[r.Method] {
		w.Header().Set("Allow", allowHeader(rt))
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	g.proxy[rt].ServeHTTP(w, r)
}

func (g *Gateway) newReverseProxy(rt *Route, transport http.RoundTripper) *httputil.ReverseProxy {
	log := g.logger.With("route", rt.Name)
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = rt.targetURL(pr.In.URL)
			pr.Out.Host = rt.origin.Host
			pr.Out.Header = rt.outboundHeader(pr.In.Header)
			if pr.In.Method == http.MethodGet || pr.In.Method == http.MethodHead {
				pr.Out.Body = nil
				pr.Out.ContentLength = 0
			}
			log.Debug("Proxying request", "method", pr.In.Method, "target", pr.Out.URL.String())
		},
		Transport:     transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			// Bodies come back decoded, so upstream length and encoding no longer apply.
			resp.Header.Del("Content-Encoding")
			resp.Header.Del("Content-Length")
			resp.ContentLength = -1
			if rt.stripCookieDomain {
				cookies := resp.Header.Values("Set-Cookie")
				resp.Header.Del("Set-Cookie")
				for _, c := range cookies {
					resp.Header.Add("Set-Cookie", stripDomain(c))
				}
			}
			if rt.cors {
				for name := range resp.Header {
					if strings.HasPrefix(name, "Access-Control-") {
						resp.Header.Del(name)
					}
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrAbortHandler) {
				log.Warn("Client disconnected", "error", err)
				return
			}
			log.Error("Proxy error", "error", err, "path", r.URL.Path)
			w.Header().Del("Content-Length")
			w.Header().Del("Content-Encoding")
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, proxyErrorBody)
		},
	}
}

func setCORSHeaders(h http.Header, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
	} else {
		h.Set("Access-Control-Allow-Origin", "*")
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	} else {
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cookie")
	}
	h.Set("Access-Control-Max-Age", "600")
}

func allowHeader(rt *Route) string {
	methods := make([]string, 0, len(rt.methods))
	for m := range rt.methods {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
