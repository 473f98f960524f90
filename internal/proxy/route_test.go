package proxy

import (
	"net/http"
	"net/url"
	"testing"

	"toolbroker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_TargetURL(t *testing.T) {
	tests := []struct {
		name   string
		rc     config.RouteConfig
		in     string
		expect string
	}{
		{"strip prefix", config.RouteConfig{Prefix: "/proxy/gid", Origin: "https://identitytoolkit.googleapis.com"},
			"/proxy/gid/v1/accounts:lookup?key=abc", "https://identitytoolkit.googleapis.com/v1/accounts:lookup?key=abc"},
		{"bare prefix", config.RouteConfig{Prefix: "/api/proxy/pipiads", Origin: "https://www.pipiads.com"},
			"/api/proxy/pipiads", "https://www.pipiads.com/"},
		{"keep prefix", config.RouteConfig{Prefix: "/app_assets", Origin: "https://my.brain.fm", KeepPrefix: true},
			"/app_assets/img/a.png", "https://my.brain.fm/app_assets/img/a.png"},
		{"origin with base path", config.RouteConfig{Prefix: "/proxy/brainapi", Origin: "https://api.brain.fm/base/"},
			"/proxy/brainapi/v3/x", "https://api.brain.fm/base/v3/x"},
		{"escaped path", config.RouteConfig{Prefix: "/proxy/elp", Origin: "https://elevenlabs.io"},
			"/proxy/elp/a%2Fb/c", "https://elevenlabs.io/a%2Fb/c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rc.Name = tt.name
			rt, err := compileRoute(tt.rc, "ua")
			require.NoError(t, err)
			in, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, rt.targetURL(in).String())
		})
	}
}

func TestRoute_Matches(t *testing.T) {
	rt, err := compileRoute(config.RouteConfig{Name: "p", Prefix: "/api/proxy/pipiads/", Origin: "https://x.com"}, "ua")
	require.NoError(t, err)
	assert.True(t, rt.matches("/api/proxy/pipiads"))
	assert.True(t, rt.matches("/api/proxy/pipiads/x"))
	assert.False(t, rt.matches("/api/proxy/pipiadsx"))
}

func TestRoute_OutboundHeader(t *testing.T) {
	rt, err := compileRoute(config.RouteConfig{
		Name: "e", Prefix: "/e", Origin: "https://api.elevenlabs.io", Site: "https://elevenlabs.io/",
		ForwardHeaders: []string{"xi-api-key"}, SetHeaders: map[string]string{"X-Client": "web"},
	}, "ua")
	require.NoError(t, err)

	in := http.Header{}
	in.Set("Xi-Api-Key", "k")
	in.Set("Accept-Encoding", "br")
	in.Set("Origin", "https://evil.example.com")
	out := rt.outboundHeader(in)

	assert.Equal(t, "k", out.Get("Xi-Api-Key"))
	assert.Empty(t, out.Get("Accept-Encoding"))
	assert.Equal(t, "https://elevenlabs.io", out.Get("Origin"))
	assert.Equal(t, "https://elevenlabs.io/", out.Get("Referer"))
	assert.Equal(t, "ua", out.Get("User-Agent"))
	assert.Equal(t, "web", out.Get("X-Client"))
}

func TestStripDomain(t *testing.T) {
	assert.Equal(t, "a=1; Path=/", stripDomain("a=1; Domain=.x.com; Path=/"))
	assert.Equal(t, "a=1", stripDomain("a=1;domain=x.com"))
	assert.Equal(t, "a=domain=1; Secure", stripDomain("a=domain=1; Secure"))
}
