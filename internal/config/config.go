package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inboxhub/realtime/internal/event"
	"github.com/inboxhub/realtime/internal/realtime"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Logging  LoggingConfig  `yaml:"logging"`
	Mock     MockConfig     `yaml:"mock"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminToken     string   `yaml:"admin_token"`
	MaxConnections int      `yaml:"max_connections"`
}

// AuthConfig maps bearer tokens to principals. With no tokens configured the
// server trusts the tenantId/userId query parameters (development mode).
type AuthConfig struct {
	Tokens        []TokenConfig `yaml:"tokens"`
	AllowDeferred bool          `yaml:"allow_deferred"`
}

type TokenConfig struct {
	Token    string `yaml:"token"`
	TenantID string `yaml:"tenant_id"`
	UserID   string `yaml:"user_id"`
}

type RealtimeConfig struct {
	QueueCapacity    int           `yaml:"queue_capacity"`
	QueueTick        time.Duration `yaml:"queue_tick"`
	DrainPerTick     int           `yaml:"drain_per_tick"`
	BatchTick        time.Duration `yaml:"batch_tick"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
	BatchThreshold   int           `yaml:"batch_threshold"`
	HighWatermark    int           `yaml:"high_watermark"`
	MaxBuffered      int           `yaml:"max_buffered"`
	NonCriticalTypes []string      `yaml:"non_critical_types"`
	ControlRate      float64       `yaml:"control_rate"`
	ControlBurst     int           `yaml:"control_burst"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type MockConfig struct {
	Tenants  int           `yaml:"tenants"`
	Interval time.Duration `yaml:"interval"`
}

func defaultConfig() *Config {
	nonCritical := make([]string, 0, len(event.DefaultNonCritical))
	for _, t := range event.DefaultNonCritical {
		nonCritical = append(nonCritical, string(t))
	}
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Realtime: RealtimeConfig{
			QueueCapacity:    1000,
			QueueTick:        150 * time.Millisecond,
			DrainPerTick:     100,
			BatchTick:        300 * time.Millisecond,
			BatchTimeout:     300 * time.Millisecond,
			BatchThreshold:   10,
			HighWatermark:    realtime.DefaultHighWatermark,
			MaxBuffered:      8 << 20,
			NonCriticalTypes: nonCritical,
			ControlRate:      5,
			ControlBurst:     10,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Mock: MockConfig{
			Tenants:  3,
			Interval: 200 * time.Millisecond,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config { return defaultConfig() }

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects settings the hub cannot run with.
func (c *Config) Validate() error {
	var errs []error
	r := c.Realtime
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if r.QueueCapacity <= 0 {
		errs = append(errs, errors.New("realtime.queue_capacity must be positive"))
	}
	if r.QueueTick <= 0 || r.BatchTick <= 0 || r.BatchTimeout <= 0 {
		errs = append(errs, errors.New("realtime ticks and batch_timeout must be positive"))
	}
	if r.DrainPerTick <= 0 || r.BatchThreshold <= 0 {
		errs = append(errs, errors.New("realtime.drain_per_tick and batch_threshold must be positive"))
	}
	if r.HighWatermark <= 0 {
		errs = append(errs, errors.New("realtime.high_watermark must be positive"))
	}
	if r.MaxBuffered < r.HighWatermark {
		errs = append(errs, fmt.Errorf("realtime.max_buffered %d below high_watermark %d", r.MaxBuffered, r.HighWatermark))
	}
	if r.ControlRate <= 0 {
		errs = append(errs, errors.New("realtime.control_rate must be positive"))
	}
	if _, err := r.nonCritical(); err != nil {
		errs = append(errs, err)
	}
	for i, tok := range c.Auth.Tokens {
		if tok.Token == "" {
			errs = append(errs, fmt.Errorf("auth.tokens[%d]: empty token", i))
		}
	}
	return errors.Join(errs...)
}

func (r RealtimeConfig) nonCritical() ([]event.Type, error) {
	out := make([]event.Type, 0, len(r.NonCriticalTypes))
	for _, s := range r.NonCriticalTypes {
		t, err := event.ParseType(s)
		if err != nil {
			return nil, fmt.Errorf("realtime.non_critical_types: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// NonCritical returns the parsed non-critical type list. Validate has already
// rejected unknown names, so parse errors are not expected here.
func (r RealtimeConfig) NonCritical() []event.Type {
	types, _ := r.nonCritical()
	return types
}

// HubOptions converts the realtime section into hub options.
func (c *Config) HubOptions() realtime.Options {
	r := c.Realtime
	return realtime.Options{
		QueueCapacity:  r.QueueCapacity,
		QueueTick:      r.QueueTick,
		DrainPerTick:   r.DrainPerTick,
		BatchTick:      r.BatchTick,
		BatchTimeout:   r.BatchTimeout,
		BatchThreshold: r.BatchThreshold,
		HighWatermark:  r.HighWatermark,
		NonCritical:    r.NonCritical(),
	}
}

// Principal resolves a bearer token.
func (a AuthConfig) Principal(token string) (TokenConfig, bool) {
	if token == "" {
		return TokenConfig{}, false
	}
	for _, t := range a.Tokens {
		if t.Token == token {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// Open reports whether the server runs without token authentication.
func (a AuthConfig) Open() bool { return len(a.Tokens) == 0 }
