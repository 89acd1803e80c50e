package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

// Shield holds the gatekeeper settings applied to every protected page.
type Shield struct {
	RiskThreshold     float64 `yaml:"risk_threshold"`
	MaxRequests       int     `yaml:"max_requests"`
	WindowMS          int64   `yaml:"window_ms"`
	IP                string  `yaml:"ip"`             // fixed address, skips detection
	ForbiddenPage     string  `yaml:"forbidden_page"` // same-origin path
	AddressSource     string  `yaml:"address_source"` // "request" or "detect"
	TrustForwardedFor bool    `yaml:"trust_forwarded_for"`
	LookupTimeoutMS   int     `yaml:"lookup_timeout_ms"`
	SecureCookies     bool    `yaml:"secure_cookies"`
	SkipSubresources  bool    `yaml:"skip_subresources"` // trusts Sec-Fetch-Dest
}

type Services struct {
	AddressURL    string  `yaml:"address_url"`
	ReputationURL string  `yaml:"reputation_url"`
	MaxRPS        float64 `yaml:"max_rps"`
	Burst         int     `yaml:"burst"`
	TimeoutMS     int     `yaml:"timeout_ms"`
}

type Storage struct {
	Backend      string `yaml:"backend"` // "memory", "redis", "sqlite"
	DurableTTLMS int64  `yaml:"durable_ttl_ms"`
	SessionTTLMS int64  `yaml:"session_ttl_ms"`
	Redis        struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
}

type APIKey struct {
	ID       string            `yaml:"id"`
	Secret   string            `yaml:"secret"`
	Metadata map[string]string `yaml:"metadata"`
}

// Auth lists callers (monitors, crawlers we run ourselves) that bypass the shield.
type Auth struct {
	Header string   `yaml:"header"`
	Keys   []APIKey `yaml:"keys"`
}

// Routes override shield settings for a path prefix. Zero values inherit.
type Routes struct {
	ID    string `yaml:"id"`
	Match struct {
		PathPrefix string   `yaml:"path_prefix"`
		Methods    []string `yaml:"methods"`
	} `yaml:"match"`

	Disabled      bool    `yaml:"disabled"`
	MaxRequests   int     `yaml:"max_requests"`
	RiskThreshold float64 `yaml:"risk_threshold"`
}

type Upstream struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	StaticDir string `yaml:"static_dir"` // served when URL is empty
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Shield        Shield        `yaml:"shield"`
	Services      Services      `yaml:"services"`
	Storage       Storage       `yaml:"storage"`
	Auth          Auth          `yaml:"auth"`
	Routes        []Routes      `yaml:"routes"`
	Upstream      Upstream      `yaml:"upstream"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 10 << 20
	}
	return s.MaxBodyBytes
} // default 10MB

func (s Shield) Window() time.Duration {
	return time.Duration(s.WindowMS) * time.Millisecond
}

func (s Shield) LookupTimeout() time.Duration {
	return time.Duration(s.LookupTimeoutMS) * time.Millisecond
}

func (s Services) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

func (s Storage) DurableTTL() time.Duration {
	return time.Duration(s.DurableTTLMS) * time.Millisecond
}

func (s Storage) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMS) * time.Millisecond
}

func (u Upstream) Timeout() time.Duration {
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

// Default returns a configuration with every default filled in.
func Default() *Root {
	var cfg Root
	applyDefaults(&cfg)
	return &cfg
}

// Load reads the YAML file at path (skipped when path is empty), fills
// defaults, applies WEBSHIELD_* environment overrides and validates.
func Load(path string) (*Root, error) {
	var cfg Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Root) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}

	if cfg.Shield.RiskThreshold == 0 {
		cfg.Shield.RiskThreshold = 70
	}
	if cfg.Shield.MaxRequests == 0 {
		cfg.Shield.MaxRequests = 100
	}
	if cfg.Shield.WindowMS == 0 {
		cfg.Shield.WindowMS = 15 * 60 * 1000
	}
	if cfg.Shield.ForbiddenPage == "" {
		cfg.Shield.ForbiddenPage = "/403.html"
	}
	if cfg.Shield.AddressSource == "" {
		cfg.Shield.AddressSource = "request"
	}
	if cfg.Shield.LookupTimeoutMS <= 0 {
		cfg.Shield.LookupTimeoutMS = 3000
	}

	if cfg.Services.AddressURL == "" {
		cfg.Services.AddressURL = "https://api.ipify.org?format=json"
	}
	if cfg.Services.ReputationURL == "" {
		cfg.Services.ReputationURL = "https://data.yourwebshield.co.uk/api/v1/lookup"
	}
	if cfg.Services.MaxRPS <= 0 {
		cfg.Services.MaxRPS = 20
	}
	if cfg.Services.Burst <= 0 {
		cfg.Services.Burst = 40
	}
	if cfg.Services.TimeoutMS <= 0 {
		cfg.Services.TimeoutMS = 5000
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.DurableTTLMS == 0 {
		cfg.Storage.DurableTTLMS = 30 * 24 * 60 * 60 * 1000
	}
	if cfg.Storage.SessionTTLMS == 0 {
		cfg.Storage.SessionTTLMS = 24 * 60 * 60 * 1000
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "webshield"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "webshield.db"
	}

	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}

	if cfg.Upstream.TimeoutMS <= 0 {
		cfg.Upstream.TimeoutMS = 3000
	}
	if cfg.Upstream.URL == "" && cfg.Upstream.StaticDir == "" {
		cfg.Upstream.StaticDir = "./public"
	}
}

func applyEnv(cfg *Root) {
	if v := os.Getenv("WEBSHIELD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WEBSHIELD_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("WEBSHIELD_RISK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Shield.RiskThreshold = f
		}
	}
	if v := os.Getenv("WEBSHIELD_MAX_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Shield.MaxRequests = n
		}
	}
	if v := os.Getenv("WEBSHIELD_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Shield.WindowMS = n
		}
	}
	if v := os.Getenv("WEBSHIELD_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("WEBSHIELD_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("WEBSHIELD_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("WEBSHIELD_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("WEBSHIELD_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
}

func (cfg *Root) Validate() error {
	var errs []error

	if cfg.Shield.MaxRequests < 0 {
		errs = append(errs, errors.New("shield.max_requests must not be negative"))
	}
	if cfg.Shield.WindowMS < 0 {
		errs = append(errs, errors.New("shield.window_ms must not be negative"))
	}
	if ttl := cfg.Storage.DurableTTLMS; ttl > 0 && cfg.Shield.WindowMS > ttl {
		errs = append(errs, fmt.Errorf("shield.window_ms %d exceeds storage.durable_ttl_ms %d", cfg.Shield.WindowMS, ttl))
	}
	if !strings.HasPrefix(cfg.Shield.ForbiddenPage, "/") {
		errs = append(errs, fmt.Errorf("shield.forbidden_page %q must be a same-origin path", cfg.Shield.ForbiddenPage))
	}
	switch cfg.Shield.AddressSource {
	case "request", "detect":
	default:
		errs = append(errs, fmt.Errorf("shield.address_source %q must be request or detect", cfg.Shield.AddressSource))
	}
	switch cfg.Storage.Backend {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", cfg.Storage.Backend))
	}
	for i, rt := range cfg.Routes {
		if rt.ID == "" {
			errs = append(errs, fmt.Errorf("routes[%d].id is required", i))
		}
		if rt.Match.PathPrefix == "" {
			errs = append(errs, fmt.Errorf("routes[%d].match.path_prefix is required", i))
		}
	}

	return errors.Join(errs...)
}
