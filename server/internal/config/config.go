package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the relay configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultGRPCPort       = 0
	DefaultMaxMessageSize = 4096

	DefaultRoomTTL          = 15 * time.Minute
	DefaultRoomBuffer       = 10
	DefaultRoomReapInterval = 30 * time.Second

	DefaultSessionTTL          = 5 * time.Minute
	DefaultTokenLength         = 32
	DefaultSessionReapInterval = 30 * time.Second

	DefaultAlertInterval = 30 * time.Second

	DefaultLogLevel = "info"
)

// Config is the parsed config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Rooms    RoomsConfig    `yaml:"rooms"`
	Sessions SessionsConfig `yaml:"sessions"`
	Auth     AuthConfig     `yaml:"auth"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	// HTTPPort serves the pages, the WebSocket endpoint, the admin API and
	// /metrics (default 8080).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health probe. 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// AllowedOrigins lists origins accepted by CORS and the WebSocket upgrade.
	// Empty accepts every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the largest inbound WebSocket frame, in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// RoomsConfig controls the room registry.
type RoomsConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	// Buffer is how many messages a subscriber may lag before it is dropped.
	Buffer int `yaml:"buffer"`
	// SlidingTTL extends a room's expiry on every join and publish.
	SlidingTTL bool `yaml:"sliding_ttl"`
}

// SessionsConfig controls the session registry and its cookie.
type SessionsConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	TokenLength  int           `yaml:"token_length"`
	// CookieSecure sets the Secure attribute on the token cookie. Defaults
	// to true; turn off only for plain-HTTP local development.
	CookieSecure *bool `yaml:"cookie_secure"`
}

// SecureCookie reports whether the token cookie carries the Secure attribute.
func (s SessionsConfig) SecureCookie() bool {
	return s.CookieSecure == nil || *s.CookieSecure
}

// AuthConfig controls authentication on the admin API and the gRPC probe.
type AuthConfig struct {
	// Mode is one of: apikey | jwt | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) to read the key from.
	// Empty means "x-api-key".
	Header string `yaml:"header"`

	// JWTSecretEnv names the environment variable holding the HMAC secret
	// used to verify bearer tokens. Used when Mode == "jwt".
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

// Key returns the API key held in the KeyEnv variable.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// JWTSecret returns the HMAC secret resolved from the environment.
func (a AuthConfig) JWTSecret() []byte {
	if a.JWTSecretEnv == "" {
		return nil
	}
	return []byte(os.Getenv(a.JWTSecretEnv))
}

// EffectiveHeader returns Header, or "x-api-key" when it is unset.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// AlertsConfig configures alerting on the relay's own metric series.
type AlertsConfig struct {
	// Interval is how often rules are evaluated (default 30s).
	Interval time.Duration   `yaml:"interval"`
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule is one threshold over a relay metric series.
type AlertRule struct {
	// Name identifies the rule; at most one alert per name fires at a time.
	Name string `yaml:"name"`

	// Condition is "series op value" over the relay metric series, e.g.
	// "connections_active > 500" or "messages_dropped_total >= 100".
	Condition string `yaml:"condition"`

	// Severity is critical, warning or info (default warning).
	Severity string `yaml:"severity"`

	// Cooldown is the minimum gap between two fires of the rule (default 15m).
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig is a notification target for fired and resolved alerts.
type WebhookConfig struct {
	// Type is slack, teams or http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the target URL.
	URLEnv string `yaml:"url_env"`
}

// URL reads the target URL from the environment. Empty disables the target.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel returns Level as a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. It is what the
// server runs with when no config file exists.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			GRPCPort:       DefaultGRPCPort,
			MaxMessageSize: DefaultMaxMessageSize,
		},
		Rooms: RoomsConfig{
			TTL:          DefaultRoomTTL,
			ReapInterval: DefaultRoomReapInterval,
			Buffer:       DefaultRoomBuffer,
		},
		Sessions: SessionsConfig{
			TTL:          DefaultSessionTTL,
			ReapInterval: DefaultSessionReapInterval,
			TokenLength:  DefaultTokenLength,
		},
		Auth:   AuthConfig{Mode: "none"},
		Alerts: AlertsConfig{Interval: DefaultAlertInterval},
		Log:    LogConfig{Level: DefaultLogLevel},
	}
}

// validate rejects values the server cannot start with.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.GRPCPort != 0 && cfg.Server.GRPCPort == cfg.Server.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ")
	}
	if cfg.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("server.max_message_size must be positive")
	}
	if cfg.Rooms.TTL <= 0 {
		return fmt.Errorf("rooms.ttl must be positive")
	}
	if cfg.Rooms.ReapInterval <= 0 {
		return fmt.Errorf("rooms.reap_interval must be positive")
	}
	if cfg.Rooms.Buffer <= 0 {
		return fmt.Errorf("rooms.buffer must be positive")
	}
	if cfg.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	if cfg.Sessions.ReapInterval <= 0 {
		return fmt.Errorf("sessions.reap_interval must be positive")
	}
	if cfg.Sessions.TokenLength < 16 {
		return fmt.Errorf("sessions.token_length %d is below the minimum of 16", cfg.Sessions.TokenLength)
	}
	switch cfg.Auth.Mode {
	case "apikey":
		if cfg.Auth.KeyEnv == "" {
			return fmt.Errorf("auth.key_env is required when auth.mode is apikey")
		}
	case "jwt":
		if cfg.Auth.JWTSecretEnv == "" {
			return fmt.Errorf("auth.jwt_secret_env is required when auth.mode is jwt")
		}
	case "none", "":
	default:
		return fmt.Errorf("auth.mode %q unknown: want apikey|jwt|none", cfg.Auth.Mode)
	}
	if cfg.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts.interval must be positive")
	}
	for i, r := range cfg.Alerts.Rules {
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d].severity %q unknown: want critical|warning|info", i, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
