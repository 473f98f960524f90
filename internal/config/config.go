package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// RandomSecretWarning is reported when no session secret was configured.
const RandomSecretWarning = "admin.session_secret not set, using a random secret; admin sessions will not survive a restart"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds the single allow-listed admin and the session signing secret.
type AdminConfig struct {
	Email         string `yaml:"email"`
	Password      string `yaml:"password"`
	SessionSecret string `yaml:"session_secret"`
	SecureCookie  bool   `yaml:"secure_cookie"`
}

// BrokerConfig holds auth code settings.
type BrokerConfig struct {
	CodeTTL          time.Duration `yaml:"code_ttl"`
	DiscoveryOrigins []string      `yaml:"discovery_origins"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

// RouteConfig describes one upstream served by the gateway.
type RouteConfig struct {
	Name              string            `yaml:"name"`
	Prefix            string            `yaml:"prefix"`
	Origin            string            `yaml:"origin"`
	Site              string            `yaml:"site"`
	Methods           []string          `yaml:"methods"`
	ForwardHeaders    []string          `yaml:"forward_headers"`
	SetHeaders        map[string]string `yaml:"set_headers"`
	CORS              bool              `yaml:"cors"`
	KeepPrefix        bool              `yaml:"keep_prefix"`
	StripCookieDomain bool              `yaml:"strip_cookie_domain"`
}

// ProxyConfig holds configuration specific to the gateway.
type ProxyConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Routes    []RouteConfig `yaml:"routes"`
}

// Rewrite maps a path (or path prefix) onto another.
type Rewrite struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// HostsConfig drives the host router.
type HostsConfig struct {
	AppPrefix       string    `yaml:"app_prefix"`
	MarketingOrigin string    `yaml:"marketing_origin"`
	AppOrigin       string    `yaml:"app_origin"`
	Aliases         []Rewrite `yaml:"aliases"`
	PrettyPrefixes  []Rewrite `yaml:"pretty_prefixes"`
	Delegates       []Rewrite `yaml:"delegates"`
}

// TrendTrackConfig holds the shared profile checkout window.
type TrendTrackConfig struct {
	CheckoutDuration time.Duration `yaml:"checkout_duration"`
}

// RateLimitConfig bounds requests per client IP on the code endpoints.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	PurgeSchedule string        `yaml:"purge_schedule"`
	CodeRetention time.Duration `yaml:"code_retention"`
}

// Config holds the configuration for the broker.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Admin      AdminConfig      `yaml:"admin"`
	Broker     BrokerConfig     `yaml:"broker"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Hosts      HostsConfig      `yaml:"hosts"`
	TrendTrack TrendTrackConfig `yaml:"trendtrack"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Port       int              `yaml:"port"`
	Debug      bool             `yaml:"debug"`

	// TrustedProxies lists the proxy addresses or CIDRs allowed to set X-Forwarded-For.
	// Empty means the client IP is always the connection's remote address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// LoadConfig reads and parses the configuration file. It returns the config and any warnings
// about values that fell back to defaults.
var LoadConfig = func(path string) (*Config, []string, error) {
	var config Config
	var warnings []string

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If file does not exist, we continue with an empty config and rely on environment variables.

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	applyEnv(&config)
	warnings = append(warnings, applyDefaults(&config)...)

	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, nil, fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if err := validateRoutes(config.Proxy.Routes); err != nil {
		return nil, nil, err
	}

	return &config, warnings, nil
}

func applyEnv(config *Config) {
	if dsn := os.Getenv("TOOLBROKER_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("TOOLBROKER_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("TOOLBROKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p < 65536 {
			config.Port = p
		}
	}
	if email := os.Getenv("TOOLBROKER_ADMIN_EMAIL"); email != "" {
		config.Admin.Email = email
	}
	if password := os.Getenv("TOOLBROKER_ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if secret := os.Getenv("TOOLBROKER_ADMIN_SESSION_SECRET"); secret != "" {
		config.Admin.SessionSecret = secret
	}
	if origins := os.Getenv("TOOLBROKER_DISCOVERY_ORIGINS"); origins != "" {
		config.Broker.DiscoveryOrigins = splitList(origins)
	}
	if proxies := os.Getenv("TOOLBROKER_TRUSTED_PROXIES"); proxies != "" {
		config.TrustedProxies = splitList(proxies)
	}
	if debug := os.Getenv("TOOLBROKER_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}
}

func applyDefaults(config *Config) []string {
	var warnings []string
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Broker.CodeTTL == 0 {
		config.Broker.CodeTTL = 120 * time.Second
	}
	if config.Broker.DiscoveryTimeout == 0 {
		config.Broker.DiscoveryTimeout = 5 * time.Second
	}
	if config.Proxy.Timeout == 0 {
		config.Proxy.Timeout = 10 * time.Second
	}
	if config.Proxy.UserAgent == "" {
		config.Proxy.UserAgent = defaultUserAgent
	}
	if len(config.Proxy.Routes) == 0 {
		config.Proxy.Routes = DefaultRoutes()
	}
	if config.Hosts.AppPrefix == "" {
		config.Hosts.AppPrefix = "app."
	}
	if config.Hosts.Aliases == nil {
		config.Hosts.Aliases = []Rewrite{{From: "/pipiads", To: "/api/proxy/pipiads/"}}
	}
	if config.Hosts.PrettyPrefixes == nil {
		config.Hosts.PrettyPrefixes = []Rewrite{{From: "/pipiads/", To: "/api/proxy/pipiads/"}}
	}
	if config.Hosts.Delegates == nil {
		config.Hosts.Delegates = []Rewrite{
			{From: "/v1/", To: "/api/proxy/pipiads/v1/"},
			{From: "/v2/", To: "/api/proxy/pipiads/v2/"},
			{From: "/static/v", To: "/api/proxy/pipiads/static/v"},
		}
	}
	if config.TrendTrack.CheckoutDuration == 0 {
		config.TrendTrack.CheckoutDuration = time.Hour
	}
	if config.RateLimit.RPS == 0 {
		config.RateLimit.RPS = 1
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 10
	}
	if config.Scheduler.PurgeSchedule == "" {
		config.Scheduler.PurgeSchedule = "@hourly"
	}
	if config.Scheduler.CodeRetention == 0 {
		config.Scheduler.CodeRetention = 24 * time.Hour
	}
	if config.Admin.Email == "" {
		warnings = append(warnings, "admin.email not set, admin login is disabled")
	}
	if config.Admin.SessionSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			panic("failed to generate session secret: " + err.Error())
		}
		config.Admin.SessionSecret = hex.EncodeToString(b)
		warnings = append(warnings, RandomSecretWarning)
	}
	return warnings
}

// DefaultRoutes returns the built-in upstream table.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{
			Name:              "pipiads",
			Prefix:            "/api/proxy/pipiads",
			Origin:            "https://www.pipiads.com",
			Methods:           []string{"GET", "POST"},
			ForwardHeaders:    []string{"X-Pipiads-Token"},
			CORS:              true,
			StripCookieDomain: true,
		},
		{
			Name:              "elevenlabs",
			Prefix:            "/api/proxy/elevenlabs",
			Origin:            "https://api.elevenlabs.io",
			Site:              "https://elevenlabs.io",
			Methods:           []string{"GET", "POST"},
			ForwardHeaders:    []string{"Xi-Api-Key"},
			CORS:              true,
			StripCookieDomain: true,
		},
		{
			Name:           "gid",
			Prefix:         "/proxy/gid",
			Origin:         "https://identitytoolkit.googleapis.com",
			Site:           "https://elevenlabs.io",
			Methods:        []string{"GET", "POST"},
			ForwardHeaders: []string{"X-Client-Version"},
		},
		{
			Name:    "elp",
			Prefix:  "/proxy/elp",
			Origin:  "https://elevenlabs.io",
			Methods: []string{"GET"},
		},
		{
			Name:    "brainapi",
			Prefix:  "/proxy/brainapi",
			Origin:  "https://api.brain.fm",
			Site:    "https://my.brain.fm",
			Methods: []string{"GET"},
		},
		{
			Name:       "app_assets",
			Prefix:     "/app_assets",
			Origin:     "https://my.brain.fm",
			Methods:    []string{"GET"},
			KeepPrefix: true,
		},
	}
}

func validateRoutes(routes []RouteConfig) error {
	seen := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		if r.Name == "" || r.Prefix == "" || r.Origin == "" {
			return fmt.Errorf("proxy route requires name, prefix and origin: %+v", r)
		}
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("proxy route %s: prefix must start with /", r.Name)
		}
		if _, dup := seen[r.Prefix]; dup {
			return fmt.Errorf("proxy route %s: duplicate prefix %s", r.Name, r.Prefix)
		}
		seen[r.Prefix] = struct{}{}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
