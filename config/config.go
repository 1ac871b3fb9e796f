// Package config loads the service configuration from an optional YAML file
// and AGENTDESK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: AGENTDESK_MODEL__API_KEY sets model.api_key.
const EnvPrefix = "AGENTDESK_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Model     ModelConfig     `koanf:"model"`
	Router    RouterConfig    `koanf:"router"`
	Flow      FlowConfig      `koanf:"flow"`
	Agents    AgentsConfig    `koanf:"agents"`
	Storage   StorageConfig   `koanf:"storage"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// DefaultUserID is used when a request carries no X-User-Id header.
	DefaultUserID string `koanf:"default_user_id"`
}

type ModelConfig struct {
	Provider    string  `koanf:"provider"` // openai, anthropic, mock
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"` // e.g. https://api.groq.com/openai/v1
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int64   `koanf:"max_tokens"`
}

type RouterConfig struct {
	// Model overrides model.model for classification calls.
	Model           string `koanf:"model"`
	OrderIDFallback bool   `koanf:"order_id_fallback"`
	HistoryMessages int    `koanf:"history_messages"`
}

type FlowConfig struct {
	MaxSteps              int    `koanf:"max_steps"`
	MaxHistoryTokens      int    `koanf:"max_history_tokens"`
	MaxConcurrentTurns    int    `koanf:"max_concurrent_turns"`
	FallbackMessage       string `koanf:"fallback_message"`
	UnknownOutcomeMessage string `koanf:"unknown_outcome_message"`
}

type AgentsConfig struct {
	// ProfilesPath points to a YAML profile file replacing the built-in one.
	ProfilesPath string `koanf:"profiles_path"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite, mysql
	DSN    string `koanf:"dsn"`
	Seed   bool   `koanf:"seed"`
}

type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Window   time.Duration `koanf:"window"`
	Max      int           `koanf:"max"`
	Capacity int           `koanf:"capacity"`
	Backend  string        `koanf:"backend"` // memory, redis
	Redis    RedisConfig   `koanf:"redis"`
}

type RedisConfig struct {
	Address  string `koanf:"address"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type EventsConfig struct {
	Backend    string `koanf:"backend"` // log, amqp
	URL        string `koanf:"url"`
	Exchange   string `koanf:"exchange"`
	RoutingKey string `koanf:"routing_key"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":              3000,
	"server.request_timeout":   "60s",
	"server.shutdown_timeout":  "10s",
	"server.default_user_id":   "00000000-0000-0000-0000-000000000000",
	"model.provider":           "openai",
	"model.model":              "gpt-4o-mini",
	"model.temperature":        0.2,
	"model.max_tokens":         1024,
	"router.order_id_fallback": true,
	"router.history_messages":  10,
	"flow.max_steps":           5,
	"flow.max_history_tokens":  6000,
	"storage.driver":           "memory",
	"storage.seed":             true,
	"ratelimit.enabled":        true,
	"ratelimit.window":         "15m",
	"ratelimit.max":            100,
	"ratelimit.capacity":       10000,
	"ratelimit.backend":        "memory",
	"events.backend":           "log",
	"events.routing_key":       "agentdesk.turns",
	"logging.level":            "info",
	"logging.format":           "json",
	"telemetry.service_name":   "agentdesk",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (skipped when empty or missing), applies environment
// overrides and fills defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Model.APIKey = substituteEnvVars(cfg.Model.APIKey)
	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)
	cfg.Events.URL = substituteEnvVars(cfg.Events.URL)
	cfg.RateLimit.Redis.Password = substituteEnvVars(cfg.RateLimit.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("model.provider: unsupported provider %q", c.Model.Provider)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "sqlite3", "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.Enabled && c.RateLimit.Redis.Address == "" {
			return errors.New("ratelimit.redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("ratelimit.backend: unsupported backend %q", c.RateLimit.Backend)
	}
	switch c.Events.Backend {
	case "log":
	case "amqp":
		if c.Events.URL == "" {
			return errors.New("events.url is required for the amqp backend")
		}
	default:
		return fmt.Errorf("events.backend: unsupported backend %q", c.Events.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port: invalid port %d", c.Server.Port)
	}
	return nil
}

// RouterModel returns the model used for classification.
func (c *Config) RouterModel() string {
	if c.Router.Model != "" {
		return c.Router.Model
	}
	return c.Model.Model
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}
