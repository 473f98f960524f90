package hostrouter

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"toolbroker/internal/config"
	"toolbroker/internal/logger"

	"github.com/stretchr/testify/assert"
)

func testHosts() config.HostsConfig {
	return config.HostsConfig{
		AppPrefix:      "app.",
		Aliases:        []config.Rewrite{{From: "/pipiads", To: "/api/proxy/pipiads/"}},
		PrettyPrefixes: []config.Rewrite{{From: "/pipiads/", To: "/api/proxy/pipiads/"}},
		Delegates: []config.Rewrite{
			{From: "/v1/", To: "/api/proxy/pipiads/v1/"},
			{From: "/static/v", To: "/api/proxy/pipiads/static/v"},
		},
	}
}

func named(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, name+" "+r.URL.Path)
	})
}

func TestResolve(t *testing.T) {
	rt := New(testHosts(), nil, nil, nil, logger.Discard())

	tests := []struct {
		host, path string
		target     Target
		outPath    string
	}{
		{"example.com", "/pipiads", TargetGateway, "/api/proxy/pipiads/"},
		{"example.com", "/pipiads/ads/123", TargetGateway, "/api/proxy/pipiads/ads/123"},
		{"app.example.com", "/v1/search", TargetGateway, "/api/proxy/pipiads/v1/search"},
		{"example.com", "/static/v3/app.js", TargetGateway, "/api/proxy/pipiads/static/v3/app.js"},
		{"example.com", "/static/v12.4/app.js", TargetGateway, "/api/proxy/pipiads/static/v12.4/app.js"},
		{"example.com", "/static/video.mp4", TargetMarketing, "/static/video.mp4"},
		{"example.com", "/static/vendor.js", TargetMarketing, "/static/vendor.js"},
		{"app.example.com", "/static/vendor.js", TargetApp, "/static/vendor.js"},
		{"example.com", "/api/auth-codes", TargetGateway, "/api/auth-codes"},
		{"example.com", "/proxy/gid/v1/token", TargetGateway, "/proxy/gid/v1/token"},
		{"example.com", "/app_assets/a.css", TargetGateway, "/app_assets/a.css"},
		{"example.com", "/admin", TargetGateway, "/admin"},
		{"APP.example.com:8443", "/dashboard", TargetApp, "/dashboard"},
		{"example.com", "/pricing", TargetMarketing, "/pricing"},
		{"example.com", "/pipiadsx", TargetMarketing, "/pipiadsx"},
		{"myapp.example.com", "/", TargetMarketing, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.host+tt.path, func(t *testing.T) {
			target, path := rt.Resolve(tt.host, tt.path)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.outPath, path)
		})
	}
}

func TestPrefixMatch(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/v1/search", "/v1/", true},
		{"/v1", "/v1/", false},
		{"/static/v", "/static/v", true},
		{"/static/v2", "/static/v", true},
		{"/static/v/x", "/static/v", true},
		{"/static/vendor.js", "/static/v", false},
		{"/other", "/static/v", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, prefixMatch(tt.path, tt.prefix), tt.path)
	}
}

func TestServeHTTP(t *testing.T) {
	rt := New(testHosts(), named("marketing"), named("app"), named("gateway"), logger.Discard())

	cases := map[string]string{
		"http://example.com/pipiads":       "gateway /api/proxy/pipiads/",
		"http://app.example.com/tools":     "app /tools",
		"http://example.com/":              "marketing /",
		"http://app.example.com/pipiads/x": "gateway /api/proxy/pipiads/x",
	}
	for url, want := range cases {
		rr := httptest.NewRecorder()
		rt.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, want, rr.Body.String(), url)
	}
}

func TestServeHTTP_DefaultsTo404(t *testing.T) {
	rt := New(testHosts(), nil, nil, named("gateway"), logger.Discard())
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://app.example.com/x", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
