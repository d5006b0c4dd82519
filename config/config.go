package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage and event bus drivers
const (
	StorageDriverMemory = "memory"
	StorageDriverRedis  = "redis"

	EventsDriverChannel = "channel"
	EventsDriverRedis   = "redis"
)

// Duration wraps time.Duration so yaml values can be written as "30s" or
// "15m"
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go notation
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full configuration of the session core
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Backend  BackendConfig  `yaml:"backend"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   EventsConfig   `yaml:"events"`
	OTP      OTPConfig      `yaml:"otp"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig locates the identity provider
type ProviderConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// BackendConfig locates the session API
type BackendConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// StorageConfig selects the durable key-value store
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EventsConfig selects the expiry event bus
type EventsConfig struct {
	Driver        string `yaml:"driver"`
	ConsumerGroup string `yaml:"consumer_group"`
}

// OTPConfig carries the passcode flow knobs. The test number bypass lives
// here and nowhere else: an empty list disables it entirely.
type OTPConfig struct {
	TestNumbers    []string `yaml:"test_numbers"`
	TestCode       string   `yaml:"test_code"`
	ResendCooldown Duration `yaml:"resend_cooldown"`
}

// SessionConfig carries the validation and revalidation knobs
type SessionConfig struct {
	VerdictCacheTTL    Duration `yaml:"verdict_cache_ttl"`
	RevalidateEnabled  bool     `yaml:"revalidate_enabled"`
	RevalidateInterval Duration `yaml:"revalidate_interval"`
}

// LogConfig carries the logging knobs
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file or environment
// overrides are present: in-process everything, production bypass off.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL: "http://localhost:9000",
			Timeout: Duration(10 * time.Second),
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:9000",
			Timeout: Duration(15 * time.Second),
		},
		Storage: StorageConfig{
			Driver:    StorageDriverMemory,
			KeyPrefix: "tiffauth:",
		},
		Events: EventsConfig{
			Driver:        EventsDriverChannel,
			ConsumerGroup: "tiffauth",
		},
		OTP: OTPConfig{
			ResendCooldown: Duration(30 * time.Second),
		},
		Session: SessionConfig{
			VerdictCacheTTL:    Duration(30 * time.Second),
			RevalidateEnabled:  true,
			RevalidateInterval: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case EventsDriverChannel:
	case EventsDriverRedis:
		if c.Storage.Driver != StorageDriverRedis {
			return fmt.Errorf("events driver %q requires the redis storage driver", c.Events.Driver)
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}

	if len(c.OTP.TestNumbers) > 0 && !isSixDigits(c.OTP.TestCode) {
		return fmt.Errorf("otp.test_code must be a six digit code when test numbers are configured")
	}

	if c.OTP.ResendCooldown <= 0 {
		return fmt.Errorf("otp.resend_cooldown must be positive")
	}
	if c.Session.VerdictCacheTTL <= 0 {
		return fmt.Errorf("session.verdict_cache_ttl must be positive")
	}
	if c.Session.RevalidateEnabled && c.Session.RevalidateInterval <= 0 {
		return fmt.Errorf("session.revalidate_interval must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
