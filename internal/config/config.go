// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Network     NetworkConfig     `mapstructure:"network" yaml:"network"`
	API         APIConfig         `mapstructure:"api" yaml:"api"`
	Verify      VerifyConfig      `mapstructure:"verify" yaml:"verify"`
	Delays      DelaysConfig      `mapstructure:"delays" yaml:"delays"`
	Selectors   SelectorsConfig   `mapstructure:"selectors" yaml:"selectors"`
	Proxy       ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	Registry    RegistryConfig    `mapstructure:"registry" yaml:"registry"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the console color per log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent      string   `mapstructure:"user_agent" yaml:"user_agent"`
	Locale         string   `mapstructure:"locale" yaml:"locale"`
	AcceptLanguage string   `mapstructure:"accept_language" yaml:"accept_language"`
	Timezone       string   `mapstructure:"timezone" yaml:"timezone"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Proxy          string   `mapstructure:"proxy" yaml:"proxy"`
	Args           []string `mapstructure:"args" yaml:"args"`
	StateDir       string   `mapstructure:"state_dir" yaml:"state_dir"`
}

// NetworkConfig tunes navigation and idle-wait behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleQuiet         time.Duration `mapstructure:"idle_quiet" yaml:"idle_quiet"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// APIConfig tunes the status/upload client's retry and pacing behavior.
type APIConfig struct {
	RequestTimeout     time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffCap         time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	UploadAttempts     int           `mapstructure:"upload_attempts" yaml:"upload_attempts"`
	UploadBackoffCap   time.Duration `mapstructure:"upload_backoff_cap" yaml:"upload_backoff_cap"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval" yaml:"min_request_interval"`
	AcceptLanguage     string        `mapstructure:"accept_language" yaml:"accept_language"`
}

// VerifyConfig describes the remote verification service and run behavior.
type VerifyConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	PollAttempts  int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	DryRun        bool          `mapstructure:"dry_run" yaml:"dry_run"`
	ForceContinue bool          `mapstructure:"force_continue" yaml:"force_continue"`
}

// DelaysConfig controls human-like pacing between form actions.
type DelaysConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Min       time.Duration `mapstructure:"min" yaml:"min"`
	Max       time.Duration `mapstructure:"max" yaml:"max"`
	Keystroke time.Duration `mapstructure:"keystroke" yaml:"keystroke"`
}

// SelectorSpec is one configured lookup in a field's fallback chain.
type SelectorSpec struct {
	Kind  string `mapstructure:"kind" yaml:"kind"`
	Query string `mapstructure:"query" yaml:"query"`
}

// SelectorsConfig overrides the built-in field selector chains per field key.
type SelectorsConfig struct {
	Fields map[string][]SelectorSpec `mapstructure:"fields" yaml:"fields"`
}

// ProxyConfig defines the upstream proxy pool and the local gateway.
type ProxyConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints" yaml:"endpoints"`
	MaxFailures int           `mapstructure:"max_failures" yaml:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	GatewayAddr string        `mapstructure:"gateway_addr" yaml:"gateway_addr"`
}

// SchoolConfig is one organization registry entry.
type SchoolConfig struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	City    string `mapstructure:"city" yaml:"city"`
	State   string `mapstructure:"state" yaml:"state"`
	Country string `mapstructure:"country" yaml:"country"`
	Type    string `mapstructure:"type" yaml:"type"`
	Domain  string `mapstructure:"domain" yaml:"domain"`
}

// RegistryConfig extends the built-in organization registry.
type RegistryConfig struct {
	DefaultID string         `mapstructure:"default_id" yaml:"default_id"`
	Schools   []SchoolConfig `mapstructure:"schools" yaml:"schools"`
}

// DiagnosticsConfig controls best-effort page dumps.
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "veriform")
	v.SetDefault("logger.log_file", "veriform.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.state_dir", "~/.veriform/state")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "45s")
	v.SetDefault("network.idle_quiet", "1500ms")
	v.SetDefault("network.idle_timeout", "15s")

	// -- API --
	v.SetDefault("api.request_timeout", "25s")
	v.SetDefault("api.max_retries", 1)
	v.SetDefault("api.backoff_cap", "30s")
	v.SetDefault("api.upload_attempts", 2)
	v.SetDefault("api.upload_backoff_cap", "10s")
	v.SetDefault("api.min_request_interval", "500ms")
	v.SetDefault("api.accept_language", "en-US,en;q=0.9")

	// -- Verify --
	v.SetDefault("verify.base_url", "https://verify.example.com")
	v.SetDefault("verify.poll_attempts", 6)
	v.SetDefault("verify.poll_interval", "2s")
	v.SetDefault("verify.dry_run", false)
	v.SetDefault("verify.force_continue", false)

	// -- Delays --
	v.SetDefault("delays.enabled", true)
	v.SetDefault("delays.min", "250ms")
	v.SetDefault("delays.max", "900ms")
	v.SetDefault("delays.keystroke", "20ms")

	// -- Proxy --
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.max_failures", 3)
	v.SetDefault("proxy.cooldown", "90s")
	v.SetDefault("proxy.gateway_addr", "127.0.0.1:3128")

	// -- Registry --
	v.SetDefault("registry.default_id", "")

	// -- Diagnostics --
	v.SetDefault("diagnostics.enabled", true)
	v.SetDefault("diagnostics.dir", "~/.veriform/dumps")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Verify.BaseURL == "" {
		return fmt.Errorf("verify.base_url is a required configuration field")
	}
	if c.Verify.PollAttempts <= 0 {
		return fmt.Errorf("verify.poll_attempts must be a positive integer")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.API.UploadAttempts <= 0 {
		return fmt.Errorf("api.upload_attempts must be a positive integer")
	}
	if c.Delays.Enabled && c.Delays.Max < c.Delays.Min {
		return fmt.Errorf("delays.max must not be smaller than delays.min")
	}
	if c.Proxy.Enabled && len(c.Proxy.Endpoints) == 0 {
		return fmt.Errorf("proxy.enabled requires at least one proxy.endpoints entry")
	}
	return nil
}
