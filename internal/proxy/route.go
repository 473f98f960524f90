package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"toolbroker/internal/config"
)

// baseForwardHeaders are copied from the client on every route.
var baseForwardHeaders = []string{"Cookie", "Authorization", "Content-Type"}

// Route is a compiled upstream entry.
type Route struct {
	Name              string
	Prefix            string
	origin            *url.URL
	site              string
	methods           map[string]bool
	forward           []string
	set               http.Header
	cors              bool
	keepPrefix        bool
	stripCookieDomain bool
}

func compileRoute(rc config.RouteConfig, userAgent string) (*Route, error) {
	origin, err := url.Parse(rc.Origin)
	if err != nil {
		return nil, fmt.Errorf("route %s: invalid origin: %w", rc.Name, err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("route %s: origin must be absolute", rc.Name)
	}
	site := rc.Site
	if site == "" {
		site = origin.Scheme + "://" + origin.Host
	}
	site = strings.TrimRight(site, "/")

	methods := make(map[string]bool)
	for _, m := range rc.Methods {
		methods[strings.ToUpper(m)] = true
	}
	if len(methods) == 0 {
		methods[http.MethodGet] = true
	}
	if methods[http.MethodGet] {
		methods[http.MethodHead] = true
	}

	set := http.Header{}
	set.Set("Origin", site)
	set.Set("Referer", site+"/")
	set.Set("User-Agent", userAgent)
	for k, v := range rc.SetHeaders {
		set.Set(k, v)
	}

	return &Route{
		Name:              rc.Name,
		Prefix:            strings.TrimRight(rc.Prefix, "/"),
		origin:            origin,
		site:              site,
		methods:           methods,
		forward:           append(append([]string{}, baseForwardHeaders...), rc.ForwardHeaders...),
		set:               set,
		cors:              rc.CORS,
		keepPrefix:        rc.KeepPrefix,
		stripCookieDomain: rc.StripCookieDomain,
	}, nil
}

// matches reports whether path falls under the route prefix on a segment boundary.
func (rt *Route) matches(path string) bool {
	return path == rt.Prefix || strings.HasPrefix(path, rt.Prefix+"/")
}

// targetURL concatenates the upstream origin, the remaining path and the original query.
func (rt *Route) targetURL(in *url.URL) *url.URL {
	rest := in.EscapedPath()
	if !rt.keepPrefix {
		rest = strings.TrimPrefix(rest, rt.Prefix)
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	escaped := strings.TrimRight(rt.origin.EscapedPath(), "/") + rest

	out := &url.URL{
		Scheme:   rt.origin.Scheme,
		Host:     rt.origin.Host,
		RawQuery: in.RawQuery,
	}
	if p, err := url.PathUnescape(escaped); err == nil {
		out.Path = p
		if p != escaped {
			out.RawPath = escaped
		}
	} else {
		out.Path = escaped
	}
	return out
}

// outboundHeader builds the upstream request headers from the allow-list and forced values.
func (rt *Route) outboundHeader(in http.Header) http.Header {
	out := http.Header{}
	for _, name := range rt.forward {
		if values := in.Values(name); len(values) > 0 {
			out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	for k, v := range rt.set {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// stripDomain drops Domain attributes so the browser scopes the cookie to the proxy host.
func stripDomain(setCookie string) string {
	parts := strings.Split(setCookie, ";")
	kept := parts[:1]
	for _, attr := range parts[1:] {
		name := strings.TrimSpace(attr)
		if i := strings.IndexByte(name, '='); i >= 0 {
			name = name[:i]
		}
		if strings.EqualFold(name, "domain") {
			continue
		}
		kept = append(kept, attr)
	}
	return strings.Join(kept, ";")
}
