// Package hostrouter picks the handler for an inbound request from its Host header and path,
// rewriting pretty paths onto the gateway namespace. It does no authorization.
package hostrouter

import (
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"

	"toolbroker/internal/config"
)

// Target is where a request is dispatched.
type Target int

const (
	TargetMarketing Target = iota
	TargetApp
	TargetGateway
)

func (t Target) String() string {
	switch t {
	case TargetApp:
		return "app"
	case TargetGateway:
		return "gateway"
	default:
		return "marketing"
	}
}

// gatewayNamespaces are served by the broker itself on every host.
var gatewayNamespaces = []string{"/api", "/proxy", "/app_assets", "/admin"}

// Router dispatches to the marketing site, the tool app, or the broker gateway.
type Router struct {
	appPrefix string
	aliases   map[string]string
	pretty    []config.Rewrite
	delegates []config.Rewrite

	marketing http.Handler
	app       http.Handler
	gateway   http.Handler
	logger    *slog.Logger
}

// New creates a Router. Nil marketing or app handlers answer 404.
func New(cfg config.HostsConfig, marketing, app, gateway http.Handler, logger *slog.Logger) *Router {
	if marketing == nil {
		marketing = http.NotFoundHandler()
	}
	if app == nil {
		app = http.NotFoundHandler()
	}
	aliases := make(map[string]string, len(cfg.Aliases))
	for _, a := range cfg.Aliases {
		aliases[a.From] = a.To
	}
	return &Router{
		appPrefix: strings.ToLower(cfg.AppPrefix),
		aliases:   aliases,
		pretty:    longestFirst(cfg.PrettyPrefixes),
		delegates: longestFirst(cfg.Delegates),
		marketing: marketing,
		app:       app,
		gateway:   gateway,
		logger:    logger.With("component", "hostrouter"),
	}
}

func longestFirst(rw []config.Rewrite) []config.Rewrite {
	out := append([]config.Rewrite(nil), rw...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].From) > len(out[j].From) })
	return out
}

// Resolve returns the target for host and path and the path to hand it.
func (rt *Router) Resolve(host, path string) (Target, string) {
	if to, ok := rt.aliases[path]; ok {
		return TargetGateway, to
	}
	for _, p := range rt.pretty {
		if prefixMatch(path, p.From) {
			return TargetGateway, p.To + strings.TrimPrefix(path, p.From)
		}
	}
	for _, d := range rt.delegates {
		if prefixMatch(path, d.From) {
			return TargetGateway, d.To + strings.TrimPrefix(path, d.From)
		}
	}
	for _, ns := range gatewayNamespaces {
		if path == ns || strings.HasPrefix(path, ns+"/") {
			return TargetGateway, path
		}
	}
	if rt.appPrefix != "" && strings.HasPrefix(hostname(host), rt.appPrefix) {
		return TargetApp, path
	}
	return TargetMarketing, path
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, path := rt.Resolve(r.Host, r.URL.Path)
	if path != r.URL.Path {
		rt.logger.Debug("Rewrote path", "from", r.URL.Path, "to", path, "target", target.String())
		r2 := r.Clone(r.Context())
		r2.URL.Path = path
		r2.URL.RawPath = ""
		r = r2
	}
	switch target {
	case TargetGateway:
		rt.gateway.ServeHTTP(w, r)
	case TargetApp:
		rt.app.ServeHTTP(w, r)
	default:
		rt.marketing.ServeHTTP(w, r)
	}
}

// prefixMatch reports whether path starts with prefix at a boundary. A prefix ending in "/"
// matches anything below it. Otherwise the path must end there, continue with "/", or continue
// with a digit, so "/static/v" matches "/static/v3/app.js" but not "/static/video.mp4".
func prefixMatch(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if strings.HasSuffix(prefix, "/") || len(path) == len(prefix) {
		return true
	}
	next := path[len(prefix)]
	return next == '/' || (next >= '0' && next <= '9')
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
